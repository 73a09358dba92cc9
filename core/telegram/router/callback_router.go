package router

import (
	"log/slog"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tg "github.com/Atoilah/vcf-confreter/core/telegram"
	"github.com/Atoilah/vcf-confreter/core/telegram/callbacks"
	"github.com/Atoilah/vcf-confreter/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions sets the handler for callbacks whose key is not registered,
// used when the registry has none.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every button press and routes it by its unique key.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		_ = c.Respond()

		key, payload := callbacks.Parse(cb)
		extras := []slog.Attr{
			slog.String("cb_key", key),
			slog.String("payload", logger.SanitizeLimit(payload, 64)),
		}
		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			h = reg.CallbackNotFound()
			if h == nil {
				h = opts.NotFound
			}
			if h == nil {
				h = func(tele.Context) error { return nil }
			}
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return run(c, "callback."+handlerName(key), h, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
