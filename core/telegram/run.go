package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/core/logger"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"
	tgsender "github.com/Atoilah/vcf-confreter/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollSeconds = 10

// Middleware is a named global middleware passed to bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configures RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Dispatcher carries queued sends; nil starts one with default options.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	// Build runs once the bot exists and returns the routes to serve.
	Build func(bot *tele.Bot) []Route

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
}

// newPoller picks the update source for the configured run mode.
func newPoller(tg coreconfig.TelegramConfig, wh coreconfig.WebhookConfig) tele.Poller {
	if tg.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	secs := tg.LongPollTimeoutSeconds
	if secs <= 0 {
		secs = defaultLongPollSeconds
	}
	return &tele.LongPoller{Timeout: time.Duration(secs) * time.Second}
}

func onBotError(err error, c tele.Context) {
	ctx := logger.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.handler_error",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

// RunTelegram builds the bot, wires middlewares and routes, and serves
// updates until ctx is done. A cancelled ctx is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	started := time.Now()
	poller := newPoller(cfg.Telegram, cfg.Webhook)
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(HTTPOptions{
			Timeout:        time.Duration(cfg.Limits.DownloadTimeoutSeconds) * time.Second,
			LongPollWindow: time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
		}),
		OnError: onBotError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot init: %w", err)
	}

	attrs := []slog.Attr{
		slog.String("event", "mode"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("duration", time.Since(started)),
	}
	if wh, ok := poller.(*tele.Webhook); ok {
		attrs = append(attrs, slog.String("listen", wh.Listen), slog.String("public_url", wh.Endpoint.PublicURL))
	} else {
		// A webhook left over from an earlier deployment blocks getUpdates.
		if err := bot.RemoveWebhook(false); err != nil {
			logger.TG.Warn("webhook cleanup failed",
				slog.String("event", "delete_webhook"),
				slog.String("err", err.Error()),
			)
		}
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "bot ready", attrs...)

	disp := opts.Dispatcher
	if disp == nil {
		disp = tgsender.NewDispatcher(tgsender.Options{})
	}
	tghelpers.SetDispatcher(disp)
	defer func() {
		disp.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	if opts.Build != nil {
		for _, r := range opts.Build(bot) {
			if r.Endpoint != nil && r.Handler != nil {
				bot.Handle(r.Endpoint, r.Handler)
			}
		}
	}
	SetupCommands(bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: disp}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return nil
}
