package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Atoilah/vcf-confreter/core/bootstrap"
	"github.com/Atoilah/vcf-confreter/core/cmd"
	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/internal/access"
	"github.com/Atoilah/vcf-confreter/internal/bot"
	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/transfer"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/workpool"
)

// exitRestart tells the supervisor to start the bot again.
const exitRestart = 3

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: build,
	})
	switch {
	case errors.Is(err, bot.ErrRestart):
		log.Printf("restarting")
		os.Exit(exitRestart)
	case err != nil:
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// service is the bot plus the storage it owns.
type service struct {
	*bot.App
	storage bootstrap.Storage
}

func (s *service) Close() error {
	appErr := s.App.Close()
	return errors.Join(appErr, s.storage.Close())
}

func build(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	var (
		backend access.Backend
		ulog    usage.Log
	)
	if res.DB != nil {
		backend = access.NewPostgresBackend(res.DB)
		ulog = usage.NewPostgresLog(res.DB)
	} else {
		backend = access.NewFileBackend(cfg.Storage.AccessFile)
		ulog = usage.NewCSVLog(cfg.Storage.UsageFile)
	}
	store, err := access.Open(ctx, backend)
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	err = bootstrap.Seed(ctx, res.Storage,
		bootstrap.SeederFunc(func(ctx context.Context, _ bootstrap.Storage) error {
			_, err := store.EnsureOwner(ctx, cfg.Telegram.OwnerID)
			return err
		}),
		bootstrap.SeederFunc(func(ctx context.Context, st bootstrap.Storage) error {
			n, err := session.CleanStale(st.Config.Storage.WorkDir)
			if n > 0 {
				logger.Info(ctx, "session", "cleanup.stale", slog.Int("dirs", n))
			}
			return err
		}),
	)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	if len(store.Owners()) == 0 {
		logger.Warn(ctx, "access", "owner.none",
			slog.String("hint", "set OWNER_ID to bootstrap the first owner"),
		)
	}

	limits := cfg.Limits
	app, err := bot.New(bot.Options{
		Config: cfg,
		Access: store,
		Usage:  ulog,
		Pool:   workpool.New(limits.Workers),
		Transfer: &transfer.Manager{
			ChunkSize:   limits.ChunkKB << 10,
			MaxAttempts: limits.TransferAttempts,
			RetryDelay:  time.Duration(limits.RetryDelayMS) * time.Millisecond,
			MaxSize:     int64(limits.MaxUploadMB) << 20,
			Timeout:     time.Duration(limits.DownloadTimeoutSeconds) * time.Second,
			SendTimeout: time.Duration(limits.SendTimeoutSeconds) * time.Second,
		},
	})
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("vcfbot: %w", err)
	}
	return &service{App: app, storage: res.Storage}, nil
}
