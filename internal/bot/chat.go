package bot

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Atoilah/vcf-confreter/core/telegram/keyboard"
	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/transfer"

	tele "gopkg.in/telebot.v4"
)

// FlowCallback is the callback key carried by flow buttons.
const FlowCallback = "flow"

// API is the part of *tele.Bot the adapters use.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	File(file *tele.File) (io.ReadCloser, error)
}

// Chat connects one flow to one Telegram chat. It keeps a single status
// message, sent on the first Status call and edited afterwards.
type Chat struct {
	api API
	to  tele.Recipient

	mu     sync.Mutex
	status *tele.Message
}

// NewChat returns a flow transport bound to the recipient.
func NewChat(api API, to tele.Recipient) *Chat {
	return &Chat{api: api, to: to}
}

// Send implements session.Chat.
func (c *Chat) Send(ctx context.Context, text string, choices ...session.Choice) error {
	var opts []interface{}
	if len(choices) > 0 {
		labels := make([]string, len(choices))
		values := make([]string, len(choices))
		for i, ch := range choices {
			labels[i], values[i] = ch.Label, ch.Value
		}
		opts = append(opts, keyboard.Choices(FlowCallback, labels, values))
	}
	_, err := call(ctx, func() (*tele.Message, error) {
		return c.api.Send(c.to, text, opts...)
	})
	return err
}

// Status implements session.Chat. A failed edit falls back to a new message.
func (c *Chat) Status(ctx context.Context, text string) error {
	c.mu.Lock()
	prev := c.status
	c.mu.Unlock()

	if prev != nil {
		_, err := call(ctx, func() (*tele.Message, error) {
			return c.api.Edit(prev, text)
		})
		if err == nil || notModified(err) {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	msg, err := call(ctx, func() (*tele.Message, error) {
		return c.api.Send(c.to, text)
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status = msg
	c.mu.Unlock()
	return nil
}

// Open implements transfer.Source. The body is closed when ctx ends so a
// stalled read does not outlive the download attempt.
func (c *Chat) Open(ctx context.Context, ref transfer.RemoteFile) (io.ReadCloser, error) {
	type result struct {
		rc  io.ReadCloser
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rc, err := c.api.File(&tele.File{FileID: ref.ID})
		ch <- result{rc, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("bot: open %s: %w", ref.Name, r.err)
		}
		stop := context.AfterFunc(ctx, func() { r.rc.Close() })
		return &body{ReadCloser: r.rc, stop: stop}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.rc != nil {
				r.rc.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

type body struct {
	io.ReadCloser
	stop func() bool
}

func (b *body) Close() error {
	b.stop()
	return b.ReadCloser.Close()
}

// Upload implements transfer.Uploader.
func (c *Chat) Upload(ctx context.Context, path string) error {
	_, err := call(ctx, func() (*tele.Message, error) {
		doc := &tele.Document{File: tele.FromDisk(path), FileName: filepath.Base(path)}
		return c.api.Send(c.to, doc)
	})
	return err
}

// call runs a blocking Bot API request and gives up when ctx ends. The
// request itself is bounded by the HTTP client timeouts.
func call(ctx context.Context, fn func() (*tele.Message, error)) (*tele.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		msg *tele.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := fn()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
