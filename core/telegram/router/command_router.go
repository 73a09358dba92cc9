package router

import (
	"log/slog"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tg "github.com/Atoilah/vcf-confreter/core/telegram"
	"github.com/Atoilah/vcf-confreter/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the owner gate put in front of owner-only commands.
type CommandRouteOptions struct {
	Owners        middleware.OwnerChecker
	OnOwnerReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command and alias. Every
// handler is recovered, logged, and gated by ownership when the command asks for it.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	gate := middleware.OwnerOnly(middleware.OwnerOptions{
		Owners:   opts.Owners,
		OnReject: opts.OnOwnerReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, def := range cmds {
		h := def.Handler
		if def.OwnerOnly {
			h = gate(h)
		}
		h = middleware.RecoverMiddleware(middleware.LoggerMiddleware(summarized(handlerName(name), h)))
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + alias, Handler: h})
		}
	}

	logger.TWire.Info("commands wired",
		slog.String("event", "tg.wire"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
