// Package bot wires the conversion flows, the access list and the usage log
// to the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Atoilah/vcf-confreter/core/buildinfo"
	"github.com/Atoilah/vcf-confreter/core/cmd"
	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/core/logger"
	coretelegram "github.com/Atoilah/vcf-confreter/core/telegram"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"
	"github.com/Atoilah/vcf-confreter/core/telegram/router"
	"github.com/Atoilah/vcf-confreter/core/telegram/sender"
	"github.com/Atoilah/vcf-confreter/internal/access"
	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/transfer"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/workpool"

	tele "gopkg.in/telebot.v4"
)

// ErrRestart is returned by the run loop after an owner asked for a restart.
var ErrRestart = errors.New("bot: restart requested")

// Options are the collaborators of an App.
type Options struct {
	Config   *coreconfig.Config
	Access   *access.Store
	Usage    usage.Log
	Pool     *workpool.Pool
	Transfer *transfer.Manager
}

// App is the contact-card bot.
type App struct {
	cfg      *coreconfig.Config
	access   *access.Store
	usage    usage.Log
	pool     *workpool.Pool
	reg      *coretelegram.Registry
	disp     *sender.Dispatcher
	flows    *Flows
	operator *Operator

	restart     chan struct{}
	restartOnce sync.Once

	sendText func(c tele.Context, text string) error
	sendMD   func(c tele.Context, text string) error
	sendFile func(c tele.Context, data []byte, name string) error
}

// New builds the app and registers its commands.
func New(opts Options) (*App, error) {
	if opts.Config == nil || opts.Access == nil || opts.Pool == nil || opts.Transfer == nil {
		return nil, fmt.Errorf("bot: config, access, pool and transfer are required")
	}
	cfg := opts.Config
	a := &App{
		cfg:     cfg,
		access:  opts.Access,
		usage:   opts.Usage,
		pool:    opts.Pool,
		reg:     coretelegram.NewRegistry(),
		disp:    sender.NewDispatcher(sender.Options{MaxRetries: 2}),
		restart: make(chan struct{}),
		sendText: func(c tele.Context, text string) error {
			return tghelpers.SendText(c, text)
		},
		sendMD: func(c tele.Context, text string) error {
			return tghelpers.SendMD(c, text)
		},
		sendFile: tghelpers.SendFile,
	}
	a.operator = &Operator{disp: a.disp, owners: a.access.Owners}
	a.flows = NewFlows(nil, session.Deps{
		Quota:         a.access,
		Transfer:      opts.Transfer,
		Pool:          a.pool,
		Usage:         a.usage,
		Operator:      a.operator,
		WorkDir:       cfg.Storage.WorkDir,
		MaxMergeFiles: cfg.Limits.MaxMergeFiles,
	}, time.Duration(cfg.Limits.StepTimeoutSeconds)*time.Second)

	a.registerCommands()
	if err := a.reg.RegisterCallback(FlowCallback, a.flows.Dispatch); err != nil {
		return nil, err
	}
	a.reg.SetCallbackNotFound(func(c tele.Context) error {
		return a.reply(c, msgNoFlow)
	})
	return a, nil
}

// attach binds the adapters to the live bot before it serves updates.
func (a *App) attach(api API) {
	a.flows.api = api
	a.operator.api = api
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:     a.cfg,
		Registry:   a.reg,
		Dispatcher: a.disp,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, coretelegram.MiddlewareOptions{
			OnLimited: func(c tele.Context) error { return a.reply(c, msgRateLimited) },
			OnPanic:   a.onPanic,
		}),
		Build:   a.routes,
		OnStart: a.onStart,
	}, nil
}

func (a *App) routes(b *tele.Bot) []coretelegram.Route {
	a.attach(b)
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		Owners:        a.access,
		OnOwnerReject: func(c tele.Context) error { return a.reply(c, msgOwnerOnly) },
	})
	routes = append(routes, router.TextRoutes(a.flows, a.reg, router.TextOptions{
		UnknownText:     func(c tele.Context) error { return a.reply(c, msgUnknown) },
		UnknownDocument: a.document,
	})...)
	return append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	n := a.operator.Notify(ctx, "startup", fmt.Sprintf(msgOnline, buildinfo.String()))
	logger.L.Info("startup notice",
		slog.String("component", "app"),
		slog.String("event", "startup.notify"),
		slog.Int("owners", n),
		slog.String("version", buildinfo.Version),
	)
	return nil
}

func (a *App) onPanic(c tele.Context, recovered any) {
	uid, _ := tghelpers.Identity(c)
	ctx := tghelpers.BuildContext(c)
	a.operator.Report(ctx, uid, fmt.Sprintf("panic in handler: %v", recovered))
	_ = a.reply(c, msgHandlerFailed)
}

// Workers implements cmd.BackgroundApp: the flow sweeper and the restart watch.
func (a *App) Workers() []cmd.Worker {
	return []cmd.Worker{a.flows.Run, a.awaitRestart}
}

// Restart asks the run loop to stop with ErrRestart.
func (a *App) Restart() {
	a.restartOnce.Do(func() { close(a.restart) })
}

func (a *App) awaitRestart(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.restart:
		logger.L.Info("restart requested",
			slog.String("component", "app"),
			slog.String("event", "restart"),
		)
		return ErrRestart
	}
}

// Close cancels running flows and waits for conversion jobs to return.
func (a *App) Close() error {
	a.flows.Close()
	a.pool.Close()
	return nil
}

func (a *App) reply(c tele.Context, text string) error {
	return a.sendText(c, text)
}
