package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	coredatabase "github.com/Atoilah/vcf-confreter/core/database"
	"github.com/Atoilah/vcf-confreter/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(ctx context.Context, cfg coredatabase.Config, dir string) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage
}

// Run initializes the logger and, when the postgres backend is selected,
// connects to the database and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{Storage: Storage{Config: cfg}}
	if cfg.Storage.Backend != coreconfig.StoragePostgres {
		logger.L.Info("storage ready",
			slog.String("component", "app"),
			slog.String("event", "storage"),
			slog.String("backend", cfg.Storage.Backend),
			slog.String("file", cfg.Storage.AccessFile),
		)
		return res, nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, cfg.Database, cfg.Storage.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	res.DB = db
	return res, nil
}

// Seed runs seeders in order and stops at the first failure.
func Seed(ctx context.Context, st Storage, seeders ...Seeder) error {
	for i, s := range seeders {
		start := time.Now()
		if err := s.Seed(ctx, st); err != nil {
			return fmt.Errorf("bootstrap: seeder %d: %w", i, err)
		}
		logger.L.Debug("seeder done",
			slog.String("component", "app"),
			slog.String("event", "seed"),
			slog.Int("index", i),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return nil
}
