package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func TestBroadcastSendsToEveryRecipient(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, PerSecond: 1000})

	var (
		mu  sync.Mutex
		got []int64
	)
	n := d.Broadcast(context.Background(), "broadcast", []int64{1, 2, 3}, func(id int64) error {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
		return nil
	})
	d.Close()

	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []int64{1, 2, 3}, got)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond, PerSecond: 1000})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return context.DeadlineExceeded
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, PerSecond: 1000})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return errors.New("bad request")
	}))
	d.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), "a", "b", func() error { return nil }), ErrQueueClosed)
	assert.Zero(t, d.Broadcast(context.Background(), "a", []int64{1}, func(int64) error { return nil }))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "flood", errorKind(tele.FloodError{RetryAfter: 3}))
	assert.Equal(t, "timeout", errorKind(context.DeadlineExceeded))
	assert.Equal(t, "http_5xx", errorKind(&tele.Error{Code: 502}))
	assert.Equal(t, "http_4xx", errorKind(&tele.Error{Code: 403}))
	assert.Equal(t, "unknown", errorKind(errors.New("x")))
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_ghi/sendMessage": EOF`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, sanitizeErrorMessage(err))
}
