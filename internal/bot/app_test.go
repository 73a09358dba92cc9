package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coretelegram "github.com/Atoilah/vcf-confreter/core/telegram"
	"github.com/Atoilah/vcf-confreter/core/telegram/state"
	"github.com/Atoilah/vcf-confreter/internal/session"
	"github.com/Atoilah/vcf-confreter/internal/usage"
)

func limit(n int64) *int64 { return &n }

func TestConversionThroughTelegramUpdates(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	_, err := ta.store.Add(ctx, userID, limit(2))
	require.NoError(t, err)

	require.NoError(t, ta.App.document(ta.document(userID, "list.txt", "Alice,123\nBob,456\n")))
	assert.True(t, ta.flows.Active(userID))

	require.NoError(t, ta.flows.Dispatch(ta.message(userID, "Contact {index}")))
	require.NoError(t, ta.flows.Dispatch(ta.press(userID, "no_split")))
	require.NoError(t, ta.flows.Dispatch(ta.press(userID, "seq_default")))
	require.NoError(t, ta.flows.Dispatch(ta.message(userID, "out")))

	assert.False(t, ta.flows.Active(userID))
	require.Contains(t, ta.api.uploads, "out.vcf")
	assert.Contains(t, ta.api.uploads["out.vcf"], "TEL;TYPE=CELL:+123")
	assert.Contains(t, ta.api.uploads["out.vcf"], "TEL;TYPE=CELL:+456")
	assert.Equal(t, limit(1), ta.store.Limit(userID))
	assert.Contains(t, ta.api.last().text, "1 file(s) sent")

	var buf strings.Builder
	require.NoError(t, ta.usage.Export(ctx, &buf))
	assert.Contains(t, buf.String(), ",42,u42,convert,list.txt,1,1,0")
}

func TestSlowStepDoesNotExpireFlow(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.flows.sessions = state.NewManager[session.Flow](30 * time.Millisecond)
	swept := -1
	ta.api.onFile = func() {
		time.Sleep(60 * time.Millisecond)
		swept = ta.flows.sessions.Sweep(ctx)
	}

	require.NoError(t, ta.App.document(ta.document(ownerID, "list.txt", "Alice,123\n")))
	assert.Zero(t, swept, "a flow handling an event is never swept")
	assert.Zero(t, ta.flows.sessions.Sweep(ctx), "the idle clock restarts when the step ends")
	require.True(t, ta.flows.Active(ownerID))

	require.NoError(t, ta.flows.Dispatch(ta.message(ownerID, "Contact {index}")))
	assert.True(t, ta.flows.Active(ownerID))
	for _, text := range ta.api.texts() {
		assert.NotContains(t, text, "timed out")
	}
}

func TestBeginRequiresQuota(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.flows.Begin(ta.message(userID, "/merge"), Merge))
	assert.False(t, ta.flows.Active(userID))
	assert.Contains(t, ta.api.last().text, "don't have access")
}

func TestCancelAndDone(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.flows.Cancel(ta.message(ownerID, "/cancel")))
	assert.Equal(t, msgNothingToCancel, ta.api.last().text)

	require.NoError(t, ta.flows.Done(ta.message(ownerID, "/done")))
	assert.Equal(t, msgNoFlow, ta.api.last().text)

	require.NoError(t, ta.flows.Begin(ta.message(ownerID, "/merge"), Merge))
	require.True(t, ta.flows.Active(ownerID))
	require.NoError(t, ta.flows.Done(ta.message(ownerID, "/done")))
	assert.True(t, ta.flows.Active(ownerID), "done without files keeps collecting")

	require.NoError(t, ta.flows.Cancel(ta.message(ownerID, "/cancel")))
	assert.False(t, ta.flows.Active(ownerID))
	assert.Contains(t, ta.api.last().text, "Cancelled")
}

func TestMergeThroughTelegramUpdates(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.flows.Begin(ta.message(ownerID, "/merge"), Merge))
	require.NoError(t, ta.flows.Dispatch(ta.document(ownerID, "a.txt", "x\ny\n")))
	require.NoError(t, ta.flows.Dispatch(ta.document(ownerID, "b.txt", "z\n")))
	require.NoError(t, ta.flows.Dispatch(ta.press(ownerID, "done")))
	require.NoError(t, ta.flows.Dispatch(ta.message(ownerID, "all")))

	assert.Equal(t, "x\ny\nz", ta.api.uploads["all.txt"])
	assert.False(t, ta.flows.Active(ownerID))
}

func TestNewFlowReplacesIdleFlow(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.flows.Begin(ta.message(ownerID, "/merge"), Merge))
	require.NoError(t, ta.flows.Begin(ta.message(ownerID, "/to_txt"), TextFile))
	assert.Equal(t, 1, ta.flows.Len())

	require.NoError(t, ta.flows.Dispatch(ta.message(ownerID, "hello")))
	require.NoError(t, ta.flows.Dispatch(ta.message(ownerID, "note")))
	assert.Equal(t, "hello", ta.api.uploads["note.txt"])
}

func TestUnsupportedDocumentOutsideFlow(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.App.document(ta.document(ownerID, "photo.png", "png")))
	assert.Equal(t, msgUnknownDoc, ta.lastReply())
	assert.False(t, ta.flows.Active(ownerID))
}

func TestOperatorReportsToOwners(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.AddOwner(context.Background(), 7))

	ta.operator.Report(context.Background(), userID, "convert write: disk full")
	var got []string
	for _, m := range ta.api.sent {
		got = append(got, m.to+": "+m.text)
	}
	assert.Equal(t, []string{
		"1: ⚠️ Bot Error (User ID: 42): convert write: disk full",
		"7: ⚠️ Bot Error (User ID: 42): convert write: disk full",
	}, got)

	long := strings.Repeat("x", maxReport+10)
	ta.operator.Report(context.Background(), 0, long)
	assert.True(t, strings.HasSuffix(ta.api.last().text, "…"))
	assert.LessOrEqual(t, len([]rune(ta.api.last().text)), maxReport+1)
}

func TestRestartStopsRunLoop(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.restartCmd(ta.message(ownerID, "/restart")))
	assert.Equal(t, msgRestarting, ta.lastReply())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, ta.awaitRestart(ctx), ErrRestart)
	ta.Restart() // idempotent
}

func TestStartupNotice(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.onStart(context.Background(), coretelegram.Runtime{}))
	assert.Contains(t, ta.api.last().text, "Bot is online")
	assert.Equal(t, "1", ta.api.last().to)
}

func TestUsageExport(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.usage.Record(context.Background(), usage.Entry{
		Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), UserID: 42, Username: "ann",
		Action: usage.ActionMerge, Input: "a.txt, b.txt", Outputs: 1, Sent: 1,
	}))
	require.NoError(t, ta.usageLog(ta.message(ownerID, "/usage")))
	data := string(ta.files["usage_log.csv"])
	assert.True(t, strings.HasPrefix(data, strings.Join(usage.Header, ",")))
	assert.Contains(t, data, "2026-01-02T03:04:05Z,42,ann,merge")
}
