package netutil

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	tele "gopkg.in/telebot.v4"
)

// RetryAfter returns the wait Telegram asked for in a flood error.
func RetryAfter(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	var pflood *tele.FloodError
	if errors.As(err, &pflood) && pflood != nil && pflood.RetryAfter > 0 {
		return time.Duration(pflood.RetryAfter) * time.Second, true
	}
	return 0, false
}

// Linear waits Step, 2*Step, 3*Step... between attempts. After Observe sees a
// flood error, the next wait is the server's retry_after instead.
type Linear struct {
	Step time.Duration

	n     int
	after time.Duration
}

var _ backoff.BackOff = (*Linear)(nil)

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.n++
	if l.after > 0 {
		d := l.after
		l.after = 0
		return d
	}
	if l.Step <= 0 {
		return 0
	}
	return l.Step * time.Duration(l.n)
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() {
	l.n = 0
	l.after = 0
}

// Observe records the failure of the last attempt.
func (l *Linear) Observe(err error) {
	if d, ok := RetryAfter(err); ok {
		l.after = d
	}
}

// Policy describes how an operation is retried.
type Policy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Step is the linear backoff unit.
	Step time.Duration
	// Retryable classifies failures; nil means Transient.
	Retryable func(error) bool
	// Notify runs before each wait with the attempt that just failed.
	Notify func(attempt int, err error, wait time.Duration)
}

// Retry runs op until it succeeds, fails with an error the policy does not
// retry, runs out of retries or ctx ends. It returns the number of attempts
// made and the last error; a cancelled ctx is reported as ctx.Err().
func Retry(ctx context.Context, p Policy, op func(attempt int) error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	lin := &Linear{Step: p.Step}
	b := backoff.WithContext(backoff.WithMaxRetries(lin, uint64(retries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(attempt)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !retryable(err):
			return backoff.Permanent(err)
		}
		lin.Observe(err)
		return err
	}, b, func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempt, err, wait)
		}
	})
	return attempt, err
}
