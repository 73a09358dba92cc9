package session

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/Atoilah/vcf-confreter/internal/convert"
	"github.com/Atoilah/vcf-confreter/internal/usage"
)

// TextStep is the text-to-file state.
type TextStep int

const (
	AwaitingContent TextStep = iota
	TextAwaitingOutputName
	TextDelivering
	TextDone
)

// TextFile saves a message's text as a .txt document.
type TextFile struct {
	base

	step    TextStep
	content string
}

// NewTextFile returns a text-to-file flow.
func NewTextFile(parent context.Context, deps Deps, user User, chat Chat) *TextFile {
	t := &TextFile{}
	t.init(parent, "to_txt", deps, user, chat)
	return t
}

// Step reports the current state.
func (t *TextFile) Step() TextStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step
}

func (t *TextFile) setStep(s TextStep) {
	t.mu.Lock()
	t.step = s
	t.mu.Unlock()
}

// Start implements Flow.
func (t *TextFile) Start(ctx context.Context) bool {
	if !t.quotaOK(ctx) {
		t.end(ctx)
		return false
	}
	t.say(ctx, msgTextIntro)
	return true
}

// Handle implements Flow.
func (t *TextFile) Handle(ctx context.Context, ev Event) bool {
	return t.drive(ctx, func() bool { return t.handle(ctx, ev) })
}

func (t *TextFile) handle(ctx context.Context, ev Event) bool {
	switch t.step {
	case AwaitingContent:
		if ev.Kind != EventText || strings.TrimSpace(ev.Text) == "" {
			t.say(ctx, msgTextNeedMsg)
			return false
		}
		t.content = ev.Text
		t.setStep(TextAwaitingOutputName)
		t.say(ctx, msgAskOutName)
		return false

	case TextAwaitingOutputName:
		name := strings.TrimSpace(ev.Text)
		if ev.Kind != EventText || convert.SanitizeBase(name) == "" {
			t.say(ctx, msgBadOutName)
			return false
		}
		t.run(ctx, name)
	}
	return true
}

func (t *TextFile) run(ctx context.Context, name string) {
	t.setStep(TextDelivering)
	t.status(ctx, msgTextSaving)
	dir, err := t.workDir()
	if err != nil {
		t.fail(ctx, "write", err)
		return
	}
	out := filepath.Join(dir, convert.SanitizeBase(name)+extText)
	if err := atomic.WriteFile(out, bytes.NewReader([]byte(t.content))); err != nil {
		t.fail(ctx, "write", fmt.Errorf("session: write %s: %w", filepath.Base(out), err))
		return
	}
	man := t.deliver(ctx, []string{out})
	t.record(ctx, usage.Entry{
		Time:    time.Now(),
		Action:  usage.ActionText,
		Outputs: man.Total,
		Sent:    len(man.Sent),
		Failed:  len(man.Failed),
	})
	t.setStep(TextDone)
	if t.ctx.Err() != nil {
		return
	}
	if len(man.Sent) == 0 {
		t.say(ctx, msgDeliverFailed)
		return
	}
	t.say(ctx, summary(man, ""))
}
