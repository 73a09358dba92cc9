package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/internal/convert"
	"github.com/Atoilah/vcf-confreter/internal/records"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/workpool"
)

// Step is the conversion state. Converting and Delivering never wait for input.
type Step int

const (
	AwaitingInput Step = iota
	AwaitingNamingPattern
	AwaitingSplitChoice
	AwaitingSplitSize
	AwaitingSequenceChoice
	AwaitingSequenceStart
	AwaitingOutputName
	Converting
	Delivering
	Done
)

var stepNames = [...]string{
	"awaiting_input",
	"awaiting_naming_pattern",
	"awaiting_split_choice",
	"awaiting_split_size",
	"awaiting_sequence_choice",
	"awaiting_sequence_start",
	"awaiting_output_name",
	"converting",
	"delivering",
	"done",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "step(" + strconv.Itoa(int(s)) + ")"
	}
	return stepNames[s]
}

// statusEvery paces the "converting…" status while a job runs.
var statusEvery = 2 * time.Second

// Conversion walks a user from an uploaded contact list to delivered cards.
type Conversion struct {
	base
	format records.Format

	step      Step
	input     string
	inputName string
	kind      records.Format
	pattern   string
	pageSize  int
	seqStart  int
}

// NewConversion returns a conversion that accepts only format, or either
// format when format is zero.
func NewConversion(parent context.Context, deps Deps, user User, chat Chat, format records.Format) *Conversion {
	c := &Conversion{format: format, seqStart: 1}
	c.init(parent, "convert", deps, user, chat)
	return c
}

// Step reports the current state.
func (c *Conversion) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Conversion) setStep(s Step) {
	c.mu.Lock()
	c.step = s
	c.mu.Unlock()
}

func (c *Conversion) askInput() string {
	switch c.format {
	case records.FormatText:
		return msgAskTextFile
	case records.FormatSheet:
		return msgAskSheetFile
	default:
		return msgAskAnyFile
	}
}

// Start implements Flow.
func (c *Conversion) Start(ctx context.Context) bool {
	if !c.quotaOK(ctx) {
		c.end(ctx)
		return false
	}
	c.say(ctx, c.askInput())
	return true
}

// Handle implements Flow. A document sent without Start is accepted as the input.
func (c *Conversion) Handle(ctx context.Context, ev Event) bool {
	return c.drive(ctx, func() bool { return c.handle(ctx, ev) })
}

func (c *Conversion) handle(ctx context.Context, ev Event) bool {
	text := strings.TrimSpace(ev.Text)
	switch c.step {
	case AwaitingInput:
		return c.acceptInput(ctx, ev)

	case AwaitingNamingPattern:
		if ev.Kind != EventText || text == "" {
			c.say(ctx, msgAskPattern)
			return false
		}
		c.pattern = ev.Text
		c.setStep(AwaitingSplitChoice)
		c.say(ctx, msgAskSplit, splitChoices...)

	case AwaitingSplitChoice:
		switch {
		case ev.Kind == EventChoice && ev.Text == ChoiceSplit:
			c.setStep(AwaitingSplitSize)
			c.say(ctx, msgAskSize)
		case ev.Kind == EventChoice && ev.Text == ChoiceNoSplit:
			c.pageSize = 0
			c.setStep(AwaitingSequenceChoice)
			c.say(ctx, msgAskSeq, seqChoices...)
		default:
			c.say(ctx, msgUseButtons, splitChoices...)
		}

	case AwaitingSplitSize:
		n, ok := positive(ev, text)
		if !ok {
			c.say(ctx, msgBadSize)
			return false
		}
		c.pageSize = n
		c.setStep(AwaitingSequenceChoice)
		c.say(ctx, msgAskSeq, seqChoices...)

	case AwaitingSequenceChoice:
		switch {
		case ev.Kind == EventChoice && ev.Text == ChoiceSeqDefault:
			c.seqStart = 1
			c.setStep(AwaitingOutputName)
			c.say(ctx, msgAskOutName)
		case ev.Kind == EventChoice && ev.Text == ChoiceSeqCustom:
			c.setStep(AwaitingSequenceStart)
			c.say(ctx, msgAskSeqNum)
		default:
			c.say(ctx, msgUseButtons, seqChoices...)
		}

	case AwaitingSequenceStart:
		n, ok := positive(ev, text)
		if !ok {
			c.say(ctx, msgBadSize)
			return false
		}
		c.seqStart = n
		c.setStep(AwaitingOutputName)
		c.say(ctx, msgAskOutName)

	case AwaitingOutputName:
		if ev.Kind != EventText || convert.SanitizeBase(text) == "" {
			c.say(ctx, msgBadOutName)
			return false
		}
		c.run(ctx, text)
		return true

	default:
		return true
	}
	return false
}

func positive(ev Event, text string) (int, bool) {
	if ev.Kind != EventText {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (c *Conversion) acceptInput(ctx context.Context, ev Event) bool {
	if ev.Kind != EventDocument {
		c.say(ctx, c.askInput())
		return false
	}
	kind, ok := records.FormatOf(ev.File.Name)
	if !ok || (c.format != 0 && kind != c.format) {
		c.say(ctx, fmt.Sprintf(msgWrongFile, c.askInput()))
		return false
	}
	path, ok, fatal := c.download(ctx, ev.File, "input"+kind.Ext())
	if fatal {
		return true
	}
	if !ok {
		return false
	}
	c.input, c.inputName, c.kind = path, ev.File.Name, kind
	logger.LogEvent(ctx, logger.SESS, slog.LevelInfo, "session.input",
		slog.String("flow", c.name),
		slog.Int64("user_id", c.user.ID),
		slog.String("file", ev.File.Name),
		slog.String("format", kind.String()),
	)
	c.setStep(AwaitingNamingPattern)
	c.say(ctx, msgAskPattern)
	return false
}

// run converts off the event path, delivers the files and charges the user
// once when anything was delivered.
func (c *Conversion) run(ctx context.Context, outName string) {
	c.setStep(Converting)
	c.status(ctx, msgConverting)

	dir, err := c.workDir()
	if err != nil {
		c.fail(ctx, "convert", err)
		return
	}
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		c.fail(ctx, "convert", err)
		return
	}

	var cards atomic.Int64
	opts := convert.Options{
		Pattern:       c.pattern,
		PageSize:      c.pageSize,
		BaseName:      outName,
		SequenceStart: c.seqStart,
		Dir:           outDir,
		Progress:      func(n int) { cards.Store(int64(n)) },
	}
	input := c.input
	job := workpool.Go(c.deps.Pool, c.ctx, func(ctx context.Context) (convert.Report, error) {
		return convert.Convert(ctx, records.File(input), opts)
	})

	tick := time.NewTicker(statusEvery)
	defer tick.Stop()
wait:
	for {
		select {
		case <-job.Done():
			break wait
		case <-tick.C:
			c.status(ctx, fmt.Sprintf(msgConvertingN, cards.Load()))
		}
	}
	rep, err := job.Wait(ctx)
	switch {
	case err == nil:
	case c.cancelled(err):
		return
	case errors.Is(err, convert.ErrNoRecords):
		c.say(ctx, msgNoContacts)
		return
	default:
		c.fail(ctx, "convert", err)
		return
	}

	c.setStep(Delivering)
	man := c.deliver(ctx, rep.Files)
	if len(man.Sent) > 0 {
		if err := c.deps.Quota.Decrement(ctx, c.user.ID); err != nil {
			logger.SESS.Error("quota decrement failed",
				slog.String("event", "session.quota"),
				slog.Int64("user_id", c.user.ID),
				slog.String("err", err.Error()),
			)
			c.report(ctx, fmt.Sprintf("%s quota: %v", c.name, err))
		}
	}
	c.record(ctx, usage.Entry{
		Time:    time.Now(),
		Action:  usage.ActionConvert,
		Input:   c.inputName,
		Outputs: man.Total,
		Sent:    len(man.Sent),
		Failed:  len(man.Failed),
	})
	c.setStep(Done)
	if c.ctx.Err() != nil {
		return
	}
	if len(man.Sent) == 0 {
		c.say(ctx, msgDeliverFailed)
		return
	}
	var extra string
	if n := len(rep.Skipped); n > 0 {
		extra = fmt.Sprintf("%d contacts converted, %d rows skipped.", rep.Cards, n)
	}
	c.say(ctx, summary(man, extra))
	logger.LogEvent(ctx, logger.SESS, slog.LevelInfo, "session.done",
		slog.String("flow", c.name),
		slog.Int64("user_id", c.user.ID),
		slog.Int("cards", rep.Cards),
		slog.Int("sent", len(man.Sent)),
		slog.Int("failed", len(man.Failed)),
	)
}
