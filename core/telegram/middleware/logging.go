package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/callbacks"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenTTL bounds how long an update id is remembered for receipt dedup.
const seenTTL = 10 * time.Second

type seenSet struct {
	mu  sync.Mutex
	ids map[int]time.Time
}

var seen = &seenSet{ids: make(map[int]time.Time)}

// first reports whether id has not been seen within seenTTL and records it.
func (s *seenSet) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.ids {
		if now.Sub(at) > seenTTL {
			delete(s.ids, k)
		}
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware stores the update's correlation context for downstream
// handlers and logs a sampled debug receipt line, once per update id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		logger.SampleDebug(func() {
			if seen.first(upd.ID, time.Now()) {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c)...)
			}
		})
		return next(c)
	}
}

// receiptAttrs describes what the update carries: a callback, an uploaded
// contact file, a command or plain text.
func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("status", "ok")}
	if u := c.Sender(); u != nil && u.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
	}
	switch msg := upd.Message; {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		attrs = append(attrs,
			slog.String("kind", "callback"),
			slog.String("cb_key", logger.SanitizeLimit(key, 64)),
			slog.String("payload", logger.SanitizeLimit(payload, 64)),
		)
	case msg != nil && msg.Document != nil:
		attrs = append(attrs,
			slog.String("kind", "document"),
			slog.String("file", logger.SanitizeLimit(msg.Document.FileName, 128)),
			slog.Int64("size", int64(msg.Document.FileSize)),
		)
	case msg != nil && len(msg.Text) > 0 && msg.Text[0] == '/':
		attrs = append(attrs, slog.String("kind", "command"), slog.String("payload", logger.SanitizeLimit(msg.Text, 64)))
	case msg != nil:
		// Plain text may be contact data; only its length is logged.
		attrs = append(attrs, slog.String("kind", "text"), slog.Int("len", len([]rune(msg.Text))))
	}
	return attrs
}
