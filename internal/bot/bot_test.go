package bot

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	"github.com/Atoilah/vcf-confreter/internal/access"
	"github.com/Atoilah/vcf-confreter/internal/transfer"
	"github.com/Atoilah/vcf-confreter/internal/usage"
	"github.com/Atoilah/vcf-confreter/internal/workpool"

	tele "gopkg.in/telebot.v4"
)

type sentMsg struct {
	to     string
	text   string
	markup *tele.ReplyMarkup
}

type fakeAPI struct {
	mu      sync.Mutex
	next    int
	sent    []sentMsg
	edits   []string
	files   map[string]string
	uploads map[string]string
	editErr error
	onFile  func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{files: map[string]string{}, uploads: map[string]string{}}
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := what.(type) {
	case string:
		m := sentMsg{to: to.Recipient(), text: v}
		for _, o := range opts {
			if rm, ok := o.(*tele.ReplyMarkup); ok {
				m.markup = rm
			}
		}
		f.sent = append(f.sent, m)
	case *tele.Document:
		data, err := os.ReadFile(v.FileLocal)
		if err != nil {
			return nil, err
		}
		f.uploads[v.FileName] = string(data)
	default:
		return nil, errors.New("unexpected payload")
	}
	f.next++
	return &tele.Message{ID: f.next}, nil
}

func (f *fakeAPI) Edit(_ tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, what.(string))
	return &tele.Message{}, nil
}

func (f *fakeAPI) File(file *tele.File) (io.ReadCloser, error) {
	if f.onFile != nil {
		f.onFile()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.files[file.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

func (f *fakeAPI) last() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}
	}
	return f.sent[len(f.sent)-1]
}

const (
	ownerID = int64(1)
	userID  = int64(42)
)

type testApp struct {
	*App
	api     *fakeAPI
	bot     *tele.Bot
	store   *access.Store
	usage   *usage.CSVLog
	replies []string
	files   map[string][]byte
	workDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := access.Open(ctx, access.NewFileBackend(filepath.Join(dir, "users.json")))
	require.NoError(t, err)
	_, err = store.EnsureOwner(ctx, ownerID)
	require.NoError(t, err)

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	pool := workpool.New(1)
	ulog := usage.NewCSVLog(filepath.Join(dir, "usage.csv"))
	cfg := &coreconfig.Config{
		Storage: coreconfig.StorageConfig{WorkDir: filepath.Join(dir, "work")},
		Limits:  coreconfig.LimitsConfig{StepTimeoutSeconds: 60, MaxMergeFiles: 5},
	}
	app, err := New(Options{
		Config:   cfg,
		Access:   store,
		Usage:    ulog,
		Pool:     pool,
		Transfer: &transfer.Manager{MaxAttempts: 2, RetryDelay: -1, MaxSize: 1 << 20},
	})
	require.NoError(t, err)
	app.disp.Close()
	app.disp = nil
	app.operator.disp = nil
	t.Cleanup(func() { _ = app.Close() })

	ta := &testApp{App: app, api: newFakeAPI(), bot: b, store: store, usage: ulog, files: map[string][]byte{}, workDir: cfg.Storage.WorkDir}
	var mu sync.Mutex
	app.sendText = func(_ tele.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		ta.replies = append(ta.replies, text)
		return nil
	}
	app.sendMD = app.sendText
	app.sendFile = func(_ tele.Context, data []byte, name string) error {
		ta.files[name] = data
		return nil
	}
	app.attach(ta.api)
	return ta
}

func (ta *testApp) lastReply() string {
	if len(ta.replies) == 0 {
		return ""
	}
	return ta.replies[len(ta.replies)-1]
}

func (ta *testApp) sender(id int64) *tele.User {
	return &tele.User{ID: id, Username: "u" + strconv.FormatInt(id, 10)}
}

func (ta *testApp) message(from int64, text string) tele.Context {
	msg := &tele.Message{
		Sender: ta.sender(from),
		Chat:   &tele.Chat{ID: from},
		Text:   text,
	}
	if strings.HasPrefix(text, "/") {
		if _, payload, ok := strings.Cut(text, " "); ok {
			msg.Payload = payload
		}
	}
	return ta.bot.NewContext(tele.Update{ID: 1, Message: msg})
}

func (ta *testApp) document(from int64, name, body string) tele.Context {
	id := "file-" + name
	ta.api.files[id] = body
	return ta.bot.NewContext(tele.Update{ID: 2, Message: &tele.Message{
		Sender:   ta.sender(from),
		Chat:     &tele.Chat{ID: from},
		Document: &tele.Document{File: tele.File{FileID: id}, FileName: name},
	}})
}

func (ta *testApp) press(from int64, value string) tele.Context {
	return ta.bot.NewContext(tele.Update{ID: 3, Callback: &tele.Callback{
		Sender:  ta.sender(from),
		Message: &tele.Message{ID: 9, Chat: &tele.Chat{ID: from}},
		Data:    "\f" + FlowCallback + "|" + value,
	}})
}
