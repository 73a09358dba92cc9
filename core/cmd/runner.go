// Package cmd is the process entrypoint shared by bot binaries: it loads the
// configuration, bootstraps the app and supervises the bot and its workers.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/core/logger"
	coretelegram "github.com/Atoilah/vcf-confreter/core/telegram"
)

// ConfigCarrier exposes the core configuration of an app-specific config.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp supplies the options RunTelegram is started with.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Worker runs next to the bot until ctx is done. A worker returning a non-nil
// error stops the bot and every other worker; Run returns that error.
type Worker func(ctx context.Context) error

// BackgroundApp is implemented by apps that run workers next to the bot.
type BackgroundApp interface {
	Workers() []Worker
}

// Closer is implemented by apps holding resources released after shutdown.
type Closer interface {
	Close() error
}

// Options wires Run. LoadConfig and Bootstrap are required.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; "" means CONFIG_PATH.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	// ShutdownLogger and RunTelegram default to the real implementations.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: no config path in $%s and no default", env)
}

func appLog() *slog.Logger { return logger.L.With("component", "app") }

// Run loads configuration, bootstraps the app, and runs the bot next to the
// app's workers until SIGINT/SIGTERM or until one of them fails.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	path, err := opts.configPath()
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", path)
	carrier, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if carrier == nil || carrier.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	app, err := opts.Bootstrap(ctx, carrier)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()
	if c, ok := app.(Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				appLog().Warn("app close failed", slog.String("event", "close"), slog.String("err", err.Error()))
			}
		}()
	}

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	runOpts.OnStart = chainStart(runOpts.OnStart, func() {
		appLog().Info("app ready", slog.String("event", "ready"), slog.Duration("startup", time.Since(started)))
	})
	runOpts.OnStop = chainStop(runOpts.OnStop, func() {
		appLog().Info("shutting down", slog.String("event", "shutdown"))
	})

	runBot := opts.RunTelegram
	if runBot == nil {
		runBot = coretelegram.RunTelegram
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runBot(gctx, runOpts) })
	if bg, ok := app.(BackgroundApp); ok {
		for _, w := range bg.Workers() {
			if w == nil {
				continue
			}
			g.Go(func() error {
				if err := w(gctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}
	return g.Wait()
}

type hook = func(ctx context.Context, rt coretelegram.Runtime) error

// chainStart runs next after a successful prev.
func chainStart(prev hook, next func()) hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		if prev != nil {
			if err := prev(ctx, rt); err != nil {
				return err
			}
		}
		next()
		return nil
	}
}

// chainStop runs first before prev.
func chainStop(prev hook, first func()) hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		first()
		if prev != nil {
			return prev(ctx, rt)
		}
		return nil
	}
}
