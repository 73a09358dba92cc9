// Package session holds the multi-step conversations a user can run: card
// conversion, file merge and text-to-file. A flow owns its staged files from
// the first upload until it ends, and removes them whatever the outcome.
//
// Flows are driven one event at a time. An event that arrives while the flow
// is still working on the previous one is answered with a "please wait" and
// otherwise ignored, so flow fields are only touched by one goroutine at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/state"
	"github.com/Atoilah/vcf-confreter/internal/transfer"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/workpool"
)

// Choice is one inline button.
type Choice struct {
	Label string
	Value string
}

// Button values carried by EventChoice.
const (
	ChoiceSplit      = "split"
	ChoiceNoSplit    = "no_split"
	ChoiceSeqCustom  = "seq_custom"
	ChoiceSeqDefault = "seq_default"
	ChoiceDone       = "done"
)

// Chat is the transport capability a flow talks through. Status keeps a
// single progress message per flow, editing it after the first call.
type Chat interface {
	transfer.Source
	transfer.Uploader
	Send(ctx context.Context, text string, choices ...Choice) error
	Status(ctx context.Context, text string) error
}

// EventKind tells what the user did.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventDocument
	EventChoice
	// EventDone is the explicit "finished" signal (/done).
	EventDone
)

// Event is one user input routed to the active flow.
type Event struct {
	Kind EventKind
	// Text is the message text, or the button value for EventChoice.
	Text string
	File transfer.RemoteFile
}

// User identifies the flow owner.
type User struct {
	ID       int64
	Username string
}

// Quota is the access check every flow runs before each step.
type Quota interface {
	HasQuota(userID int64) bool
	Decrement(ctx context.Context, userID int64) error
}

// Operator receives internal diagnostics about failed flows.
type Operator interface {
	Report(ctx context.Context, userID int64, msg string)
}

// Deps are the collaborators shared by all flows.
type Deps struct {
	Quota    Quota
	Transfer *transfer.Manager
	Pool     *workpool.Pool
	// Usage and Operator are optional.
	Usage    usage.Log
	Operator Operator
	// WorkDir holds one staging directory per flow.
	WorkDir       string
	MaxMergeFiles int
}

// Flow is a conversation registered with the state manager.
type Flow interface {
	state.Flow
	// Start checks access and sends the first prompt. It reports false when
	// the flow ended immediately.
	Start(ctx context.Context) bool
	// Handle feeds one event and reports whether the flow has ended.
	Handle(ctx context.Context, ev Event) bool
	// Cancel ends the flow at the user's request.
	Cancel(ctx context.Context)
}

// base carries what every flow shares: identity, staging directory and the
// single-runner guard.
type base struct {
	name string
	deps Deps
	user User
	chat Chat

	// ctx lives as long as the flow; Cancel and Expire end it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	ended   bool

	dir     string
	endOnce sync.Once
}

func (b *base) init(parent context.Context, name string, deps Deps, user User, chat Chat) {
	b.name = name
	b.deps = deps
	b.user = user
	b.chat = chat
	b.ctx, b.cancel = context.WithCancel(parent)
}

// Name implements state.Flow.
func (b *base) Name() string { return b.name }

// Busy implements state.Flow.
func (b *base) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// claim marks the flow as running. It fails when another event is in progress
// or the flow already ended.
func (b *base) claim(ctx context.Context) bool {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return false
	}
	if b.running {
		b.mu.Unlock()
		b.say(ctx, msgBusy)
		return false
	}
	b.running = true
	b.mu.Unlock()
	return true
}

func (b *base) release() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

func (b *base) isEnded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// drive runs step for one event under the single-runner guard and turns a
// panic into a fatal flow error.
func (b *base) drive(ctx context.Context, step func() bool) (done bool) {
	if !b.claim(ctx) {
		return b.isEnded()
	}
	defer b.release()
	defer func() {
		if r := recover(); r != nil {
			logger.SESS.Error("flow panicked",
				slog.String("event", "session.panic"),
				slog.String("flow", b.name),
				slog.Int64("user_id", b.user.ID),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			b.fail(ctx, "panic", fmt.Errorf("%v", r))
			done = true
		}
	}()
	if !b.quotaOK(ctx) {
		b.end(ctx)
		return true
	}
	done = step() || b.ctx.Err() != nil
	if done {
		b.end(ctx)
	}
	return done
}

// stop ends the flow from outside the event path. A running step notices the
// cancelled context and cleans up after itself.
func (b *base) stop(ctx context.Context, notice string) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	running := b.running
	if !running {
		b.ended = true
	}
	b.mu.Unlock()
	b.cancel()
	if !running {
		b.end(ctx)
	}
	b.say(ctx, notice)
}

// Cancel implements Flow.
func (b *base) Cancel(ctx context.Context) { b.stop(ctx, msgCancelled) }

// Expire implements state.Flow.
func (b *base) Expire(ctx context.Context) {
	logger.SESS.Info("flow expired",
		slog.String("event", "session.expire"),
		slog.String("flow", b.name),
		slog.Int64("user_id", b.user.ID),
	)
	b.stop(ctx, msgTimeout)
}

func (b *base) quotaOK(ctx context.Context) bool {
	if b.deps.Quota != nil && b.deps.Quota.HasQuota(b.user.ID) {
		return true
	}
	logger.SESS.Info("access denied",
		slog.String("event", "session.denied"),
		slog.String("flow", b.name),
		slog.Int64("user_id", b.user.ID),
	)
	b.say(ctx, msgAccessDenied)
	return false
}

// workDir returns the flow's staging directory, creating it on first use.
func (b *base) workDir() (string, error) {
	if b.dir != "" {
		return b.dir, nil
	}
	root := b.deps.WorkDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, fmt.Sprintf("%d-%s", b.user.ID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("session: create work dir: %w", err)
	}
	b.dir = dir
	return dir, nil
}

// end releases everything the flow owns. Cleanup failures are logged only.
func (b *base) end(ctx context.Context) {
	b.endOnce.Do(func() {
		b.mu.Lock()
		b.ended = true
		b.mu.Unlock()
		b.cancel()
		if b.dir == "" {
			return
		}
		if err := os.RemoveAll(b.dir); err != nil {
			logger.SESS.Warn("cleanup failed",
				slog.String("event", "session.cleanup"),
				slog.String("flow", b.name),
				slog.String("file", b.dir),
				slog.String("err", err.Error()),
			)
			return
		}
		logger.LogEvent(ctx, logger.SESS, slog.LevelDebug, "session.cleanup",
			slog.String("flow", b.name),
			slog.String("file", b.dir),
		)
	})
}

func (b *base) say(ctx context.Context, text string, choices ...Choice) {
	if err := b.chat.Send(ctx, text, choices...); err != nil {
		logger.SESS.Warn("reply failed",
			slog.String("event", "session.reply"),
			slog.String("flow", b.name),
			slog.Int64("user_id", b.user.ID),
			slog.String("err", err.Error()),
		)
	}
}

func (b *base) status(ctx context.Context, text string) {
	if err := b.chat.Status(ctx, text); err != nil {
		logger.SESS.Debug("status update failed",
			slog.String("event", "session.status"),
			slog.String("flow", b.name),
			slog.String("err", err.Error()),
		)
	}
}

// fail reports a fatal flow error: a generic notice to the user, the
// details to the operator, then cleanup.
func (b *base) fail(ctx context.Context, where string, err error) {
	logger.SESS.Error("flow failed",
		slog.String("event", "session.fail"),
		slog.String("flow", b.name),
		slog.String("step", where),
		slog.Int64("user_id", b.user.ID),
		slog.String("err", err.Error()),
	)
	b.report(ctx, fmt.Sprintf("%s %s: %v", b.name, where, err))
	b.say(ctx, msgFailed)
	b.end(ctx)
}

func (b *base) report(ctx context.Context, msg string) {
	if b.deps.Operator != nil {
		b.deps.Operator.Report(ctx, b.user.ID, msg)
	}
}

func (b *base) record(ctx context.Context, e usage.Entry) {
	if b.deps.Usage == nil {
		return
	}
	e.UserID = b.user.ID
	e.Username = b.user.Username
	if err := b.deps.Usage.Record(ctx, e); err != nil {
		logger.SESS.Warn("usage record failed",
			slog.String("event", "usage.record"),
			slog.Int64("user_id", b.user.ID),
			slog.String("err", err.Error()),
		)
	}
}

// cancelled reports whether err came from the flow being cancelled.
func (b *base) cancelled(err error) bool {
	return b.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, b.ctx.Err()))
}

// download fetches an uploaded file into the staging directory. It returns
// false after telling the user why the file was not accepted; fatal reports
// whether the flow must end.
func (b *base) download(ctx context.Context, ref transfer.RemoteFile, name string) (path string, ok, fatal bool) {
	if b.deps.Transfer.MaxSize > 0 && ref.Size > b.deps.Transfer.MaxSize {
		b.say(ctx, tooLarge(b.deps.Transfer.MaxSize))
		return "", false, false
	}
	dir, err := b.workDir()
	if err != nil {
		b.fail(ctx, "download", err)
		return "", false, true
	}
	dst := filepath.Join(dir, name)
	b.status(ctx, msgDownloading)
	err = b.deps.Transfer.Download(b.ctx, b.chat, ref, dst, func(pct int) {
		b.status(ctx, fmt.Sprintf(msgDownloadingPct, pct))
	})
	switch {
	case err == nil:
		b.status(ctx, msgDownloaded)
		return dst, true, false
	case b.cancelled(err):
		return "", false, true
	case errors.Is(err, transfer.ErrTooLarge):
		b.say(ctx, tooLarge(b.deps.Transfer.MaxSize))
		return "", false, false
	default:
		logger.SESS.Warn("download failed",
			slog.String("event", "session.download"),
			slog.String("flow", b.name),
			slog.Int64("user_id", b.user.ID),
			slog.String("file", ref.Name),
			slog.String("err", err.Error()),
		)
		b.status(ctx, msgDownloadFailed)
		b.report(ctx, fmt.Sprintf("%s download %q: %v", b.name, ref.Name, err))
		b.end(ctx)
		return "", false, true
	}
}

// deliver sends files and reports the outcome to the user.
func (b *base) deliver(ctx context.Context, files []string) transfer.Manifest {
	b.status(ctx, fmt.Sprintf(msgSending, 0, len(files)))
	man := b.deps.Transfer.SendAll(b.ctx, b.chat, files, func(done, total int) {
		b.status(ctx, fmt.Sprintf(msgSending, done, total))
	})
	if len(man.Failed) > 0 && b.ctx.Err() == nil {
		b.report(ctx, fmt.Sprintf("%s delivery: %d/%d sent, failed: %s",
			b.name, len(man.Sent), man.Total, strings.Join(man.FailedNames(), ", ")))
	}
	return man
}

// CleanStale removes staging directories left behind by a previous process.
// Only entries named like a flow directory are touched.
func CleanStale(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("session: read work dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !flowDirName(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, fmt.Errorf("session: remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func flowDirName(name string) bool {
	uid, id, ok := strings.Cut(name, "-")
	if !ok || uid == "" {
		return false
	}
	if _, err := strconv.ParseInt(uid, 10, 64); err != nil {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
