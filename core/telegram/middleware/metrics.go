package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const repliesKey = "replies"

// ReplyStats counts what a handler sent back while processing one update.
type ReplyStats struct {
	Messages int
	Files    int
	Keyboard bool
}

// countingContext records every successful Send, Reply and Edit.
type countingContext struct {
	tele.Context
	stats *ReplyStats
}

func (c countingContext) record(what interface{}, opts []interface{}) {
	switch what.(type) {
	case *tele.Document, tele.Document:
		c.stats.Files++
	default:
		c.stats.Messages++
	}
	if !c.stats.Keyboard && withMarkup(opts) {
		c.stats.Keyboard = true
	}
}

func withMarkup(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	err := c.Context.Send(what, opts...)
	if err == nil {
		c.record(what, opts)
	}
	return err
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	err := c.Context.Reply(what, opts...)
	if err == nil {
		c.record(what, opts)
	}
	return err
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	err := c.Context.Edit(what, opts...)
	if err == nil {
		c.record(what, opts)
	}
	return err
}

// MessageMetricsMiddleware hands downstream handlers a context that counts
// the replies they send. Read the counts with Replies.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		stats := &ReplyStats{}
		c.Set(repliesKey, stats)
		return next(countingContext{Context: c, stats: stats})
	}
}

// Replies returns the reply counts recorded for the current update.
func Replies(c tele.Context) ReplyStats {
	if s, ok := c.Get(repliesKey).(*ReplyStats); ok && s != nil {
		return *s
	}
	return ReplyStats{}
}
