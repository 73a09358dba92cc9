package bot

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/transfer"

	tele "gopkg.in/telebot.v4"
)

func TestChatSendWithChoices(t *testing.T) {
	api := newFakeAPI()
	chat := NewChat(api, &tele.Chat{ID: 5})

	require.NoError(t, chat.Send(context.Background(), "Split?",
		session.Choice{Label: "Yes", Value: session.ChoiceSplit},
		session.Choice{Label: "No", Value: session.ChoiceNoSplit},
	))
	m := api.last()
	assert.Equal(t, "5", m.to)
	assert.Equal(t, "Split?", m.text)
	require.NotNil(t, m.markup)
	require.Len(t, m.markup.InlineKeyboard, 1)
	row := m.markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "Yes", row[0].Text)
	assert.Equal(t, FlowCallback, row[0].Unique)
	assert.Equal(t, session.ChoiceSplit, row[0].Data)
}

func TestChatStatusEditsAfterFirstMessage(t *testing.T) {
	api := newFakeAPI()
	chat := NewChat(api, &tele.Chat{ID: 5})
	ctx := context.Background()

	require.NoError(t, chat.Status(ctx, "Downloading file…"))
	require.NoError(t, chat.Status(ctx, "Downloading file… 50%"))
	assert.Equal(t, []string{"Downloading file…"}, api.texts())
	assert.Equal(t, []string{"Downloading file… 50%"}, api.edits)

	api.editErr = errors.New("telegram: bad request: message is not modified")
	require.NoError(t, chat.Status(ctx, "Downloading file… 50%"))
	assert.Len(t, api.texts(), 1)

	api.editErr = errors.New("telegram: message to edit not found")
	require.NoError(t, chat.Status(ctx, "Sending files… (0/1)"))
	assert.Equal(t, []string{"Downloading file…", "Sending files… (0/1)"}, api.texts())
}

func TestChatOpenAndUpload(t *testing.T) {
	api := newFakeAPI()
	api.files["abc"] = "Alice,123"
	chat := NewChat(api, &tele.Chat{ID: 5})
	ctx := context.Background()

	rc, err := chat.Open(ctx, transfer.RemoteFile{ID: "abc", Name: "list.txt"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "Alice,123", string(data))

	_, err = chat.Open(ctx, transfer.RemoteFile{ID: "missing", Name: "gone.txt"})
	assert.ErrorContains(t, err, "gone.txt")

	path := filepath.Join(t.TempDir(), "out.vcf")
	require.NoError(t, os.WriteFile(path, []byte("BEGIN:VCARD"), 0o600))
	require.NoError(t, chat.Upload(ctx, path))
	assert.Equal(t, "BEGIN:VCARD", api.uploads["out.vcf"])
}

func TestChatHonoursCancelledContext(t *testing.T) {
	api := newFakeAPI()
	chat := NewChat(api, &tele.Chat{ID: 5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, chat.Send(ctx, "hi"), context.Canceled)
	assert.Empty(t, api.texts())
}
