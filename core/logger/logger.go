// Package logger provides the bot's structured slog logger, its component
// loggers and the context helpers that correlate log lines with updates.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/Atoilah/vcf-confreter/core/buildinfo"
	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
)

var (
	initOnce sync.Once
	out      *sink
	levelVar slog.LevelVar

	sampleMu  sync.Mutex
	sampleAll bool
	sampleOff bool
	sampler   = &rate.Sometimes{Every: 50}

	// L is the base logger; component loggers below are derived from it.
	L = slog.New(slog.NewTextHandler(io.Discard, nil))

	// DB logs postgres connectivity events.
	DB = L
	// TG logs Telegram transport events.
	TG = L
	// MIG logs database migration events.
	MIG = L
	// TWire logs Telegram wiring steps.
	TWire = L
	// ACL logs access list mutations.
	ACL = L
	// CONV logs batch conversion events.
	CONV = L
	// XFER logs file transfer events.
	XFER = L
	// SESS logs conversation flow transitions.
	SESS = L
	// USAGE logs usage log writes.
	USAGE = L
)

// InitLogger installs the structured logger described by cfg. Only the first
// call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(parseLevel(lc.Level))
		configureSampling(lc)

		var s *sink
		s, err = openSink(lc)
		if err != nil {
			return
		}
		out = s
		setBase(slog.New(newHandler(&levelVar, s, pickFormat(lc, os.Stdout), parseKeyOrder(lc.KeysOrder))))

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("event", "startup"),
			slog.String("version", buildinfo.String()),
			slog.String("go_version", runtime.Version()),
			slog.String("profile", profile(lc)),
		)
	})
	return err
}

func setBase(l *slog.Logger) {
	L = l
	slog.SetDefault(l)
	DB = Component("db")
	TG = Component("tg")
	MIG = Component("db.migrate")
	TWire = Component("tg.wire")
	ACL = Component("access")
	CONV = Component("convert")
	XFER = Component("transfer")
	SESS = Component("session")
	USAGE = Component("usage")
}

// Shutdown closes the log files opened by InitLogger.
func Shutdown() error {
	if out == nil {
		return nil
	}
	return out.close()
}

// pickFormat honours an explicit format; otherwise a terminal or a debug
// profile gets key=value lines and everything else JSON.
func pickFormat(lc coreconfig.LoggingConfig, stdout *os.File) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return formatJSON
	case "kv", "text", "pretty":
		return formatKV
	}
	if p := profile(lc); p == "debug" || p == "dev" {
		return formatKV
	}
	if stdout != nil && (isatty.IsTerminal(stdout.Fd()) || isatty.IsCygwinTerminal(stdout.Fd())) {
		return formatKV
	}
	return formatJSON
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// openSink always writes to stdout. With a log dir it also appends to the bot
// file and tees error lines into the errors file.
func openSink(lc coreconfig.LoggingConfig) (*sink, error) {
	outs := []io.Writer{os.Stdout}
	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return newSink(outs, nil, nil), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	var closers []io.Closer
	open := func(name string) (*os.File, error) {
		if name = strings.TrimSpace(name); name == "" {
			return nil, nil
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", name, err)
		}
		closers = append(closers, f)
		return f, nil
	}
	main, err := open(lc.BotFile)
	if err != nil {
		return nil, err
	}
	if main != nil {
		outs = append(outs, main)
	}
	errs, err := open(lc.ErrorsFile)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	if errs == nil {
		return newSink(outs, nil, closers), nil
	}
	return newSink(outs, errs, closers), nil
}

// configureSampling reads a debug sample spec such as "1/50", "20" or "0".
// A debug profile logs every sampled event.
func configureSampling(lc coreconfig.LoggingConfig) {
	sampleMu.Lock()
	defer sampleMu.Unlock()
	sampleAll = profile(lc) == "debug"
	sampleOff = false
	every := 50
	spec := strings.TrimSpace(lc.DebugSample)
	if _, den, ok := strings.Cut(spec, "/"); ok {
		spec = den
	}
	if n, err := strconv.Atoi(spec); err == nil {
		if n <= 0 {
			sampleOff = true
		} else {
			every = n
		}
	}
	sampler = &rate.Sometimes{Every: every}
}

// SampleDebug runs fn for a sample of high-volume debug events.
func SampleDebug(fn func()) {
	sampleMu.Lock()
	all, off, s := sampleAll, sampleOff, sampler
	sampleMu.Unlock()
	switch {
	case all:
		fn()
	case !off:
		s.Do(fn)
	}
}

// Background returns context.Background.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes an event line through logg, the context logger or L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to the given component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}
