package middleware

import (
	"log/slog"

	"github.com/Atoilah/vcf-confreter/core/logger"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// OwnerChecker answers whether a user is a bot owner.
type OwnerChecker interface {
	IsOwner(userID int64) bool
}

// OwnerOptions defines how owner-only checks behave.
type OwnerOptions struct {
	Owners   OwnerChecker
	OnReject tele.HandlerFunc
}

// OwnerOnly lets only owners reach downstream handlers. With no checker
// configured everyone is rejected.
func OwnerOnly(opts OwnerOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user != nil && opts.Owners != nil && opts.Owners.IsOwner(user.ID) {
				return next(c)
			}
			var userID int64
			if user != nil {
				userID = user.ID
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.ACL, slog.LevelInfo, "acl.owner_denied",
				slog.Int64("user_id", userID),
				slog.String("payload", logger.SanitizeLimit(c.Text(), 64)),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
