package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"
	"github.com/Atoilah/vcf-confreter/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summarized wraps h so every invocation ends with one handler.handled line.
func summarized(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return run(c, name, h)
	}
}

// run calls h under the handler name and logs its outcome together with the
// replies it produced.
func run(c tele.Context, name string, h tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := h(c)

	sent := middleware.Replies(c)
	attrs := append([]slog.Attr{
		slog.String("status", status(err)),
		slog.Duration("duration", time.Since(start)),
		slog.Int("messages", sent.Messages),
		slog.Int("files", sent.Files),
		slog.Bool("kb", sent.Keyboard),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
	return err
}

// skipped logs an update no handler was registered for.
func skipped(c tele.Context, name string) {
	ctx := tghelpers.WithHandler(c, name)
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", slog.String("status", "skip"))
}

func status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func handlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode classifies err for log aggregation: PANIC, a Telegram API error
// code, or the Go type name.
func errorCode(err error) string {
	var tgErr *tele.Error
	switch {
	case errors.Is(err, middleware.ErrPanic):
		return "PANIC"
	case errors.As(err, &tgErr):
		return fmt.Sprintf("TG_%d", tgErr.Code)
	}
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(strings.TrimPrefix(name, "*"))
}
