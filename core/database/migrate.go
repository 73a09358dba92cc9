package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

const readyTimeout = 30 * time.Second

// upFile is one "NNNNNN_name.up.sql" migration.
type upFile struct {
	version uint64
	name    string
}

// upFiles lists the up migrations in dir ordered by version.
func upFiles(dir string) []upFile {
	paths, _ := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	files := make([]upFile, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, upFile{version: v, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files
}

// between returns the names of files with from < version <= to.
func between(files []upFile, from, to uint64) []string {
	var names []string
	for _, f := range files {
		if f.version > from && f.version <= to {
			names = append(names, f.name)
		}
	}
	return names
}

// RunMigrations waits for postgres and applies every pending up migration
// in dir. A relative dir resolves against the working directory.
func RunMigrations(ctx context.Context, cfg Config, dir string) error {
	if err := WaitForPostgres(ctx, cfg, readyTimeout); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	files := upFiles(abs)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "migrate.resolve"),
		slog.String("path", abs),
		slog.Int("files", len(files)),
	)

	m, err := migrate.New("file://"+filepath.ToSlash(abs), URL(cfg))
	if err != nil {
		return fmt.Errorf("migrations init: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.MIG.Warn("migrations close failed",
				slog.String("event", "migrate.close"),
				slog.Any("source_err", srcErr),
				slog.Any("db_err", dbErr),
			)
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migrations failed",
			slog.String("event", "migrate.apply"),
			slog.String("status", "fail"),
			slog.Duration("duration", time.Since(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrations apply: %w", err)
	}
	to, _, _ := m.Version()

	applied := between(files, uint64(from), uint64(to))
	attrs := []slog.Attr{
		slog.String("event", "migrate.summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", time.Since(start)),
	}
	if preview, cut := logger.SummarizeStrings(applied, 6); preview != "" {
		attrs = append(attrs, slog.String("applied", preview), slog.Bool("truncated", cut))
	}
	logger.MIG.LogAttrs(ctx, slog.LevelInfo, "migrations done", attrs...)
	return nil
}
