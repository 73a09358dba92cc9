package session

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/internal/convert"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/vcard"
	"github.com/Atoilah/vcf-confreter/internal/workpool"
)

// MergeStep is the merge state.
type MergeStep int

const (
	Collecting MergeStep = iota
	MergeAwaitingOutputName
	Merging
	MergeDone
)

const (
	extText = ".txt"
	extCard = vcard.Ext
)

// Merge concatenates uploaded files of one kind into a single output.
type Merge struct {
	base

	step  MergeStep
	ext   string
	files []string
	names []string
}

// NewMerge returns a merge flow.
func NewMerge(parent context.Context, deps Deps, user User, chat Chat) *Merge {
	m := &Merge{}
	m.init(parent, "merge", deps, user, chat)
	return m
}

// Step reports the current state.
func (m *Merge) Step() MergeStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Merge) setStep(s MergeStep) {
	m.mu.Lock()
	m.step = s
	m.mu.Unlock()
}

// Start implements Flow.
func (m *Merge) Start(ctx context.Context) bool {
	if !m.quotaOK(ctx) {
		m.end(ctx)
		return false
	}
	m.say(ctx, msgMergeIntro)
	return true
}

// Handle implements Flow.
func (m *Merge) Handle(ctx context.Context, ev Event) bool {
	return m.drive(ctx, func() bool { return m.handle(ctx, ev) })
}

func isDone(ev Event) bool {
	switch ev.Kind {
	case EventDone:
		return true
	case EventChoice:
		return ev.Text == ChoiceDone
	case EventText:
		return strings.EqualFold(strings.TrimSpace(ev.Text), "done")
	}
	return false
}

func (m *Merge) handle(ctx context.Context, ev Event) bool {
	switch m.step {
	case Collecting:
		if isDone(ev) {
			if len(m.files) == 0 {
				m.say(ctx, msgMergeNeedFile)
				return false
			}
			m.setStep(MergeAwaitingOutputName)
			m.say(ctx, msgAskOutName)
			return false
		}
		if ev.Kind != EventDocument {
			m.say(ctx, msgMergeSendFile, doneChoice...)
			return false
		}
		return m.collect(ctx, ev)

	case MergeAwaitingOutputName:
		name := strings.TrimSpace(ev.Text)
		if ev.Kind != EventText || convert.SanitizeBase(name) == "" {
			m.say(ctx, msgBadOutName)
			return false
		}
		m.run(ctx, name)
		return true
	}
	return true
}

func (m *Merge) collect(ctx context.Context, ev Event) bool {
	ext := strings.ToLower(filepath.Ext(ev.File.Name))
	want := m.ext
	if want == "" && ext != extText && ext != extCard {
		m.say(ctx, fmt.Sprintf(msgMergeWrong, extText+" or "+extCard))
		return false
	}
	if want != "" && ext != want {
		m.say(ctx, fmt.Sprintf(msgMergeWrong, want))
		return false
	}
	if limit := m.deps.MaxMergeFiles; limit > 0 && len(m.files) >= limit {
		m.say(ctx, fmt.Sprintf(msgMergeFull, limit), doneChoice...)
		return false
	}
	path, ok, fatal := m.download(ctx, ev.File, fmt.Sprintf("in%03d%s", len(m.files)+1, ext))
	if fatal {
		return true
	}
	if !ok {
		return false
	}
	m.ext = ext
	m.files = append(m.files, path)
	m.names = append(m.names, ev.File.Name)
	m.say(ctx, fmt.Sprintf(msgMergeGot, len(m.files), ev.File.Name), doneChoice...)
	return false
}

func (m *Merge) run(ctx context.Context, name string) {
	m.setStep(Merging)
	m.status(ctx, msgMerging)

	dir, err := m.workDir()
	if err != nil {
		m.fail(ctx, "merge", err)
		return
	}
	out := filepath.Join(dir, "out", convert.SanitizeBase(name)+m.ext)
	files, ext := m.files, m.ext
	job := workpool.Go(m.deps.Pool, m.ctx, func(context.Context) (struct{}, error) {
		var data []byte
		if ext == extText {
			s, err := MergeText(files)
			if err != nil {
				return struct{}{}, err
			}
			data = []byte(s)
		} else {
			b, err := MergeCards(files)
			if err != nil {
				return struct{}{}, err
			}
			data = b
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, atomic.WriteFile(out, bytes.NewReader(data))
	})
	if _, err := job.Wait(m.ctx); err != nil {
		if !m.cancelled(err) {
			m.fail(ctx, "merge", err)
		}
		return
	}

	man := m.deliver(ctx, []string{out})
	m.record(ctx, usage.Entry{
		Time:    time.Now(),
		Action:  usage.ActionMerge,
		Input:   strings.Join(m.names, ", "),
		Outputs: man.Total,
		Sent:    len(man.Sent),
		Failed:  len(man.Failed),
	})
	m.setStep(MergeDone)
	if m.ctx.Err() != nil {
		return
	}
	if len(man.Sent) == 0 {
		m.say(ctx, msgDeliverFailed)
		return
	}
	m.say(ctx, summary(man, fmt.Sprintf("%d files merged.", len(files))))
	logger.LogEvent(ctx, logger.SESS, slog.LevelInfo, "session.done",
		slog.String("flow", m.name),
		slog.Int64("user_id", m.user.ID),
		slog.Int("inputs", len(files)),
	)
}

// MergeText joins the lines of every file, in order, with "\n". A trailing
// newline in an input does not add an empty line.
func MergeText(paths []string) (string, error) {
	var lines []string
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("merge: %w", err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return "", fmt.Errorf("merge: read %s: %w", filepath.Base(p), err)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// MergeCards concatenates card files, in order, separated by a newline.
func MergeCards(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
