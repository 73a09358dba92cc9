package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/callbacks"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"
	"github.com/Atoilah/vcf-confreter/core/telegram/state"
	"github.com/Atoilah/vcf-confreter/internal/records"
	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/transfer"

	tele "gopkg.in/telebot.v4"
)

// Starter builds a flow for one user.
type Starter func(parent context.Context, deps session.Deps, user session.User, chat session.Chat) session.Flow

// Conversion starts a card conversion accepting only format, or either
// format when format is zero.
func Conversion(format records.Format) Starter {
	return func(parent context.Context, deps session.Deps, user session.User, chat session.Chat) session.Flow {
		return session.NewConversion(parent, deps, user, chat, format)
	}
}

// Merge starts a file merge.
func Merge(parent context.Context, deps session.Deps, user session.User, chat session.Chat) session.Flow {
	return session.NewMerge(parent, deps, user, chat)
}

// TextFile starts a text-to-file flow.
func TextFile(parent context.Context, deps session.Deps, user session.User, chat session.Chat) session.Flow {
	return session.NewTextFile(parent, deps, user, chat)
}

// Flows keeps one active flow per user and feeds it the user's updates.
type Flows struct {
	api      API
	deps     session.Deps
	sessions *state.Manager[session.Flow]

	root context.Context
	stop context.CancelFunc
}

// NewFlows returns a flow router. Flows idle for longer than ttl expire.
func NewFlows(api API, deps session.Deps, ttl time.Duration) *Flows {
	root, stop := context.WithCancel(context.Background())
	return &Flows{
		api:      api,
		deps:     deps,
		sessions: state.NewManager[session.Flow](ttl),
		root:     root,
		stop:     stop,
	}
}

// Run expires idle flows until ctx is done.
func (f *Flows) Run(ctx context.Context) error {
	f.sessions.Run(ctx, 0)
	return nil
}

// Close cancels every flow still running.
func (f *Flows) Close() {
	f.stop()
}

// Active implements router.Flows.
func (f *Flows) Active(userID int64) bool {
	return f.sessions.InProgress(userID)
}

// Len reports the number of active flows.
func (f *Flows) Len() int {
	return f.sessions.Len()
}

// Begin replaces the sender's flow with a new one and sends its first prompt.
func (f *Flows) Begin(c tele.Context, start Starter) error {
	ctx, uid, flow, ok := f.open(c, start)
	if !ok {
		return nil
	}
	defer f.sessions.Hold(uid, flow)()
	if !flow.Start(ctx) {
		f.sessions.Finish(uid, flow)
	}
	return nil
}

// BeginWith starts a flow and hands it the current update, e.g. a document
// sent with no active flow.
func (f *Flows) BeginWith(c tele.Context, start Starter) error {
	ev, ok := eventOf(c)
	if !ok {
		return nil
	}
	ctx, uid, flow, ok := f.open(c, start)
	if !ok {
		return nil
	}
	defer f.sessions.Hold(uid, flow)()
	if flow.Handle(ctx, ev) {
		f.sessions.Finish(uid, flow)
	}
	return nil
}

// open registers a new flow for the sender, cancelling the one it replaces.
// A flow that is busy converting or delivering is not replaced.
func (f *Flows) open(c tele.Context, start Starter) (context.Context, int64, session.Flow, bool) {
	ctx := tghelpers.BuildContext(c)
	uid, name := tghelpers.Identity(c)
	chat := NewChat(f.api, c.Chat())

	if prev, ok := f.sessions.Get(uid); ok && prev.Busy() {
		_ = chat.Send(ctx, msgFlowBusy)
		return ctx, uid, nil, false
	}
	flow := start(f.root, f.deps, session.User{ID: uid, Username: name}, chat)
	ctx = logger.WithFlow(ctx, flow.Name())
	if prev, ok := f.sessions.Start(uid, flow); ok {
		prev.Cancel(ctx)
	}
	logger.LogEvent(ctx, logger.SESS, slog.LevelInfo, "session.start",
		slog.String("flow", flow.Name()),
		slog.Int64("user_id", uid),
	)
	return ctx, uid, flow, true
}

// Dispatch implements router.Flows.
func (f *Flows) Dispatch(c tele.Context) error {
	ev, ok := eventOf(c)
	if !ok {
		return nil
	}
	return f.feed(c, ev)
}

// Done sends the explicit "finished" signal to the sender's flow.
func (f *Flows) Done(c tele.Context) error {
	return f.feed(c, session.Event{Kind: session.EventDone})
}

func (f *Flows) feed(c tele.Context, ev session.Event) error {
	ctx := tghelpers.BuildContext(c)
	uid, _ := tghelpers.Identity(c)
	flow, release, ok := f.sessions.Acquire(uid)
	defer release()
	if !ok {
		return NewChat(f.api, c.Chat()).Send(ctx, msgNoFlow)
	}
	ctx = logger.WithFlow(ctx, flow.Name())
	if flow.Handle(ctx, ev) {
		f.sessions.Finish(uid, flow)
	}
	return nil
}

// Cancel tears down the sender's flow.
func (f *Flows) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid, _ := tghelpers.Identity(c)
	flow, ok := f.sessions.Clear(uid)
	if !ok {
		return NewChat(f.api, c.Chat()).Send(ctx, msgNothingToCancel)
	}
	logger.LogEvent(ctx, logger.SESS, slog.LevelInfo, "session.cancel",
		slog.String("flow", flow.Name()),
		slog.Int64("user_id", uid),
	)
	flow.Cancel(ctx)
	return nil
}

// eventOf maps an update to a flow event.
func eventOf(c tele.Context) (session.Event, bool) {
	if cb := c.Callback(); cb != nil {
		if key, payload := callbacks.Parse(cb); key == FlowCallback {
			return session.Event{Kind: session.EventChoice, Text: payload}, true
		}
		return session.Event{}, false
	}
	msg := c.Message()
	if msg == nil {
		return session.Event{}, false
	}
	if doc := msg.Document; doc != nil {
		return session.Event{Kind: session.EventDocument, File: transfer.RemoteFile{
			ID:   doc.FileID,
			Name: doc.FileName,
			Size: int64(doc.FileSize),
		}}, true
	}
	if msg.Text != "" && !strings.HasPrefix(msg.Text, "/") {
		return session.Event{Kind: session.EventText, Text: msg.Text}, true
	}
	return session.Event{}, false
}
