package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type ctxKey struct{}

type loggerKey struct{}

// meta is the per-update correlation data carried through a context. Each
// With* call stores a modified copy so parents are never mutated.
type meta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	flow     string
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(ctxKey{}).(meta)
	return m
}

func withMeta(ctx context.Context, fn func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, ctxKey{}, m)
}

// WithLogger stores log in ctx. FromContext falls back to L.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta records the Telegram update, user and chat the context serves.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID, m.userID, m.chatID = updateID, userID, chatID
	})
}

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id, or 0.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// WithHandler names the route handling the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" && ctx != nil {
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// WithFlow tags the context with the active conversation flow name.
func WithFlow(ctx context.Context, flow string) context.Context {
	if flow == "" && ctx != nil {
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.flow = flow })
}

// Detach keeps the correlation values of ctx but drops its deadline and
// cancellation.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

// BuildRID returns a correlation id in the form updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// fields appends the correlation values not already set on the record.
func (m meta) fields(rec *record) {
	rec.setDefault("rid", m.rid)
	rec.setDefault("flow", m.flow)
	rec.setDefault("handler", m.handler)
	if m.userID != 0 {
		rec.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		rec.setDefault("chat_id", m.chatID)
	}
	if m.updateID != 0 {
		rec.setDefault("update_id", m.updateID)
	}
}
