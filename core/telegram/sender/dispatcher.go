// Package sender runs outbound Telegram calls on a small worker pool with
// global pacing and retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("sender: queue closed")
	// ErrQueueFull is returned by Enqueue when the queue has no room.
	ErrQueueFull = errors.New("sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options tunes a Dispatcher. Zero values pick defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one job, waits included.
	MaxDuration time.Duration
	// PerSecond paces attempts across all workers; 0 means 25/s, below the
	// Bot API's global ceiling of 30 messages per second.
	PerSecond float64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.PerSecond <= 0 {
		o.PerSecond = 25
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes queued sends asynchronously.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
	pace   *rate.Limiter
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		pace: rate.NewLimiter(rate.Limit(opts.PerSecond), 1),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.do(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Broadcast enqueues one send per recipient and returns how many were
// accepted. A full queue drops the remaining recipients.
func (d *Dispatcher) Broadcast(ctx context.Context, action string, recipients []int64, send func(chatID int64) error) int {
	for i, id := range recipients {
		if err := d.Enqueue(ctx, action, "sendMessage", func() error { return send(id) }); err != nil {
			logger.Warn(ctx, "tg.sender", "broadcast.drop",
				slog.String("action", action),
				slog.Int64("chat_id", id),
				slog.Int("remaining", len(recipients)-i),
				slog.String("err", err.Error()),
			)
			return i
		}
	}
	return len(recipients)
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) do(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	logger.Debug(ctx, "tg.sender", "send.start", attrs...)

	policy := netutil.Policy{
		Retries: d.opts.MaxRetries,
		Step:    d.opts.RetryBackoff,
		Notify: func(attempt int, err error, wait time.Duration) {
			logger.Debug(ctx, "tg.sender", "send.retry",
				append(attrs,
					slog.Int("attempt", attempt),
					slog.Duration("backoff", wait),
					slog.String("err", sanitizeErrorMessage(err)),
				)...)
		},
	}
	attempts, err := netutil.Retry(ctx, policy, func(int) error {
		if err := d.pace.Wait(ctx); err != nil {
			return err
		}
		return j.run()
	})

	attrs = append(attrs, slog.Int("attempts", attempts), slog.Duration("duration", time.Since(start)))
	if err == nil {
		logger.Debug(ctx, "tg.sender", "send.ok", attrs...)
		return
	}
	d.errs.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		append(attrs,
			slog.String("err", sanitizeErrorMessage(err)),
			slog.String("err_kind", errorKind(err)),
		)...)
}

// errorKind buckets a failure for log filtering.
func errorKind(err error) string {
	var (
		apiErr *tele.Error
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
	)
	if _, ok := netutil.RetryAfter(err); ok {
		return "flood"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &apiErr) && apiErr.Code >= 500:
		return "http_5xx"
	case errors.As(err, &apiErr) && apiErr.Code >= 400:
		return "http_4xx"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}
	return "unknown"
}

// sanitizeErrorMessage redacts bot tokens that net/http puts in URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
