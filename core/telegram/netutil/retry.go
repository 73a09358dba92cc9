// Package netutil classifies network failures and retries operations that
// hit transient ones.
package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err happened before the request reached the
// Bot API: a failed dial or a network timeout. Such requests are safe to
// repeat.
func ShouldRetry(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Transient widens ShouldRetry to failures seen mid-transfer: per-attempt
// deadlines, dropped connections, flood control and 5xx replies.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	if _, flood := RetryAfter(err); flood {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == 429
	}
	return ShouldRetry(err)
}
