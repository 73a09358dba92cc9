// Package transfer moves files between the chat transport and local disk:
// size-checked chunked downloads finalized by atomic replace, and per-file
// retried uploads that keep going after a file fails.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/natefinch/atomic"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/netutil"
)

var (
	// ErrTooLarge is returned when a source exceeds the size ceiling.
	ErrTooLarge = errors.New("transfer: file too large")
	// ErrRetriesExhausted is wrapped by errors of transfers that used every attempt.
	ErrRetriesExhausted = errors.New("transfer: retries exhausted")
)

// Error describes a failed transfer of one file.
type Error struct {
	Op       string
	Name     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer: %s %q failed after %d attempt(s): %v", e.Op, e.Name, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const (
	defaultChunkSize   = 64 << 10
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	defaultTimeout     = 5 * time.Minute
	defaultSendTimeout = 30 * time.Second
)

// Manager holds transfer limits. The zero value is usable.
type Manager struct {
	// ChunkSize bounds each read from the source.
	ChunkSize int
	// MaxAttempts per file, including the first.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// MaxSize rejects larger downloads; <= 0 disables the check.
	MaxSize int64
	// Timeout bounds one download attempt.
	Timeout time.Duration
	// SendTimeout bounds one upload attempt.
	SendTimeout time.Duration
	// Retryable classifies failures; nil means netutil.Transient.
	Retryable func(error) bool
}

func (m *Manager) chunkSize() int {
	if m.ChunkSize > 0 {
		return m.ChunkSize
	}
	return defaultChunkSize
}

func (m *Manager) attempts() int {
	if m.MaxAttempts > 0 {
		return m.MaxAttempts
	}
	return defaultMaxAttempts
}

func (m *Manager) retryDelay() time.Duration {
	if m.RetryDelay > 0 {
		return m.RetryDelay
	}
	if m.RetryDelay < 0 {
		return 0
	}
	return defaultRetryDelay
}

func (m *Manager) timeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return defaultTimeout
}

func (m *Manager) sendTimeout() time.Duration {
	if m.SendTimeout > 0 {
		return m.SendTimeout
	}
	return defaultSendTimeout
}

func (m *Manager) retryable(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	if m.Retryable != nil {
		return m.Retryable(err)
	}
	return netutil.Transient(err)
}

// retry runs fn until it succeeds, fails permanently, or runs out of attempts.
// Each attempt gets its own deadline. cleanup runs after every failed attempt.
func (m *Manager) retry(ctx context.Context, op, name string, perAttempt time.Duration, fn func(context.Context) error, cleanup func()) error {
	limit := m.attempts()
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retryDelay()), uint64(limit-1)), ctx)

	attempt := 0
	exhausted := false
	err := backoff.RetryNotify(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, perAttempt)
		err := fn(actx)
		cancel()
		if err == nil {
			return nil
		}
		if cleanup != nil {
			cleanup()
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !m.retryable(err) {
			return backoff.Permanent(err)
		}
		logger.XFER.Warn("transfer attempt failed",
			slog.String("event", "transfer."+op+".retry"),
			slog.String("file", name),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		exhausted = attempt == limit
		return err
	}, policy, nil)

	switch {
	case err == nil:
		if attempt > 1 {
			logger.XFER.Info("transfer recovered",
				slog.String("event", "transfer."+op+".retry_ok"),
				slog.String("file", name),
				slog.Int("attempt", attempt),
			)
		}
		return nil
	case exhausted:
		err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return &Error{Op: op, Name: name, Attempts: attempt, Err: err}
}

// RemoteFile identifies a file held by the transport.
type RemoteFile struct {
	ID   string
	Name string
	// Size as announced by the transport; 0 when unknown.
	Size int64
}

// Source opens remote files for reading.
type Source interface {
	Open(ctx context.Context, ref RemoteFile) (io.ReadCloser, error)
}

// Progress receives download completion in percent.
type Progress func(percent int)

// Download fetches ref into dst. Oversized sources are rejected before any
// byte is read. Data is streamed to a temporary sibling of dst that is
// removed before every retry and atomically moved into place on success, so
// dst is never left half-written.
func (m *Manager) Download(ctx context.Context, src Source, ref RemoteFile, dst string, progress Progress) error {
	if m.MaxSize > 0 && ref.Size > m.MaxSize {
		logger.XFER.Info("download rejected",
			slog.String("event", "transfer.download.too_large"),
			slog.String("file", ref.Name),
			slog.Int64("size", ref.Size),
		)
		return &Error{Op: "download", Name: ref.Name, Err: ErrTooLarge}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	tmp := dst + ".part"
	removeTmp := func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.XFER.Warn("remove temp file failed",
				slog.String("event", "transfer.cleanup"),
				slog.String("file", tmp),
				slog.String("err", err.Error()),
			)
		}
	}

	start := time.Now()
	var written int64
	err := m.retry(ctx, "download", ref.Name, m.timeout(), func(actx context.Context) error {
		removeTmp()
		n, err := m.fetch(actx, src, ref, tmp, progress)
		written = n
		return err
	}, removeTmp)
	if err != nil {
		removeTmp()
		logger.XFER.Error("download failed",
			slog.String("event", "transfer.download"),
			slog.String("file", ref.Name),
			slog.String("err", err.Error()),
		)
		return err
	}
	if err := atomic.ReplaceFile(tmp, dst); err != nil {
		removeTmp()
		return &Error{Op: "download", Name: ref.Name, Attempts: 1, Err: err}
	}
	logger.XFER.Info("download finished",
		slog.String("event", "transfer.download"),
		slog.String("file", ref.Name),
		slog.Int64("size", written),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func (m *Manager) fetch(ctx context.Context, src Source, ref RemoteFile, tmp string, progress Progress) (int64, error) {
	rc, err := src.Open(ctx, ref)
	if err != nil {
		return 0, err
	}
	// Unblocks a Read stuck on a stalled connection once the attempt deadline hits.
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer func() {
		stop()
		_ = rc.Close()
	}()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, m.chunkSize())
	var (
		total    int64
		reported = -1
	)
	report := func(pct int) {
		if progress != nil && pct > reported {
			reported = pct
			progress(pct)
		}
	}
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				return total, werr
			}
			total += int64(n)
			if m.MaxSize > 0 && total > m.MaxSize {
				_ = f.Close()
				return total, ErrTooLarge
			}
			if ref.Size > 0 {
				pct := int(total * 100 / ref.Size)
				if pct > 100 {
					pct = 100
				}
				if step := pct / 10 * 10; step > 0 {
					report(step)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = f.Close()
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			return total, rerr
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return total, err
	}
	if err := f.Close(); err != nil {
		return total, err
	}
	if ref.Size > 0 && total < ref.Size {
		return total, io.ErrUnexpectedEOF
	}
	report(100)
	return total, nil
}

// Uploader delivers one local file to the user.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Manifest is the outcome of SendAll. Sent and Failed hold paths in input order.
type Manifest struct {
	Total  int
	Sent   []string
	Failed []string
}

// Complete reports whether every file was delivered.
func (m Manifest) Complete() bool { return m.Total > 0 && len(m.Sent) == m.Total }

// Partial reports whether some but not all files were delivered.
func (m Manifest) Partial() bool { return len(m.Sent) > 0 && len(m.Sent) < m.Total }

// FailedNames returns the base names of undelivered files.
func (m Manifest) FailedNames() []string {
	names := make([]string, len(m.Failed))
	for i, p := range m.Failed {
		names[i] = filepath.Base(p)
	}
	return names
}

// SendAll uploads files one at a time, each with its own retry budget. A
// file that exhausts its attempts is recorded as failed and the next one is
// tried. Files not attempted because ctx ended are recorded as failed too.
// progress, when set, is called after every file with the number processed.
func (m *Manager) SendAll(ctx context.Context, up Uploader, files []string, progress func(done, total int)) Manifest {
	man := Manifest{Total: len(files)}
	start := time.Now()
	for i, path := range files {
		if ctx.Err() != nil {
			man.Failed = append(man.Failed, files[i:]...)
			break
		}
		name := filepath.Base(path)
		err := m.retry(ctx, "send", name, m.sendTimeout(), func(actx context.Context) error {
			return up.Upload(actx, path)
		}, nil)
		if err != nil {
			man.Failed = append(man.Failed, path)
			logger.XFER.Error("send failed",
				slog.String("event", "transfer.send"),
				slog.String("file", name),
				slog.String("err", err.Error()),
			)
		} else {
			man.Sent = append(man.Sent, path)
		}
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	logger.XFER.Info("delivery finished",
		slog.String("event", "transfer.send_all"),
		slog.Int("files", man.Total),
		slog.Int("sent", len(man.Sent)),
		slog.Int("failed", len(man.Failed)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return man
}
