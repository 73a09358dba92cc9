package middleware

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the steady-state gap between updates from one user.
	Interval time.Duration
	// Burst updates may arrive back to back before Interval applies.
	Burst int
	// Exclude lists update kinds, as named by UpdateKind, that bypass limiting.
	Exclude   []string
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users not seen for this long; 0 means 10m.
	IdleTTL time.Duration
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiterSet struct {
	mu    sync.Mutex
	users map[int64]*userLimiter
	every rate.Limit
	burst int
	ttl   time.Duration
	swept time.Time
}

func (s *limiterSet) allow(userID int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > s.ttl {
		for id, u := range s.users {
			if now.Sub(u.seen) > s.ttl {
				delete(s.users, id)
			}
		}
		s.swept = now
	}
	u, ok := s.users[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(s.every, s.burst)}
		s.users[userID] = u
	}
	u.seen = now
	return u.lim.AllowN(now, 1)
}

// UpdateKind classifies an update for rate limit exclusions:
// "callback", "document", "message" or "other".
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Document != nil:
		return "document"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that applies a token bucket per user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	set := &limiterSet{
		users: make(map[int64]*userLimiter),
		every: rate.Every(opts.Interval),
		burst: opts.Burst,
		ttl:   opts.IdleTTL,
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if slices.Contains(opts.Exclude, kind) {
				return next(c)
			}
			if set.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.Int64("user_id", user.ID),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
