package telegram

import (
	"time"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions carries the hooks of the shared middleware chain.
type MiddlewareOptions struct {
	OnLimited tele.HandlerFunc
	OnPanic   middleware.PanicHook
}

// DefaultMiddlewares returns the global chain in order: panic recovery, the
// per-user rate limit when configured, request logging and reply counting.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.Recover(opts.OnPanic)}}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		chain = append(chain, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Burst:     cfg.RateLimit.Burst,
				Exclude:   cfg.RateLimit.ExcludeUpdates,
				OnLimited: opts.OnLimited,
			}),
		})
	}
	return append(chain,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}
