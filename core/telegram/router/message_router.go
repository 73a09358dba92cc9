package router

import (
	tg "github.com/Atoilah/vcf-confreter/core/telegram"
	"github.com/Atoilah/vcf-confreter/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Flows routes updates to the sender's active conversation.
type Flows interface {
	Active(userID int64) bool
	Dispatch(c tele.Context) error
}

// TextOptions sets the handlers for text and documents no flow or command claims.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// UnknownDocument receives documents sent outside any flow.
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds the text and document routes. An active flow sees every
// text and document first. Otherwise text is matched against the registry's
// public commands and documents go to UnknownDocument.
func TextRoutes(flows Flows, reg *tg.Registry, opts TextOptions) []tg.Route {
	inFlow := func(c tele.Context) bool {
		return flows != nil && c.Sender() != nil && flows.Active(c.Sender().ID)
	}

	onText := func(c tele.Context) error {
		if inFlow(c) {
			return run(c, "flow", flows.Dispatch)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.OwnerOnly {
				return run(c, handlerName(key), cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return run(c, "fallback", fb)
			}
		}
		if opts.UnknownText != nil {
			return run(c, "unknown_text", opts.UnknownText)
		}
		skipped(c, "unknown_text")
		return nil
	}

	onDocument := func(c tele.Context) error {
		switch {
		case inFlow(c):
			return run(c, "flow_document", flows.Dispatch)
		case opts.UnknownDocument != nil:
			return run(c, "document", opts.UnknownDocument)
		}
		skipped(c, "unexpected_document")
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(onText)},
		{Endpoint: tele.OnDocument, Handler: wrap(onDocument)},
	}
}
