package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrPanic is returned by handlers that panicked.
var ErrPanic = errors.New("handler panicked")

// PanicHook is told about every recovered panic. It must not panic itself.
type PanicHook func(c tele.Context, recovered any)

// Recover catches panics in handlers, logs them with the request context and
// turns them into ErrPanic.
func Recover(hook PanicHook) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var userID int64
				if u := c.Sender(); u != nil {
					userID = u.ID
				}
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "tg.panic",
					slog.Int64("user_id", userID),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				if hook != nil {
					hook(c, r)
				}
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}()
			return next(c)
		}
	}
}

// RecoverMiddleware is Recover without a hook.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return Recover(nil)(next)
}
