package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func textFrom(b *tele.Bot, userID int64, text string) tele.Context {
	return b.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}})
}

type owners map[int64]bool

func (o owners) IsOwner(id int64) bool { return o[id] }

func TestOwnerOnly(t *testing.T) {
	b := offlineBot(t)
	var ran, rejected int
	h := OwnerOnly(OwnerOptions{
		Owners:   owners{7: true},
		OnReject: func(tele.Context) error { rejected++; return nil },
	})(func(tele.Context) error { ran++; return nil })

	require.NoError(t, h(textFrom(b, 7, "/whitelist")))
	require.NoError(t, h(textFrom(b, 8, "/whitelist")))
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, rejected)
}

func TestOwnerOnlyWithoutChecker(t *testing.T) {
	b := offlineBot(t)
	ran := false
	h := OwnerOnly(OwnerOptions{})(func(tele.Context) error { ran = true; return nil })
	require.NoError(t, h(textFrom(b, 7, "/restart")))
	assert.False(t, ran)
}

func TestRateLimitBurst(t *testing.T) {
	b := offlineBot(t)
	var ran, limited int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     2,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})(func(tele.Context) error { ran++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(textFrom(b, 1, "hi")))
	}
	require.NoError(t, h(textFrom(b, 2, "hi")))

	assert.Equal(t, 3, ran, "burst of two for user 1, one for user 2")
	assert.Equal(t, 1, limited)
}

func TestRateLimitExclusions(t *testing.T) {
	b := offlineBot(t)
	ran := 0
	h := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  []string{"callback"},
	})(func(tele.Context) error { ran++; return nil })

	cb := b.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{Sender: &tele.User{ID: 1}, Data: "\fflow|done"}})
	for i := 0; i < 3; i++ {
		require.NoError(t, h(cb))
	}
	assert.Equal(t, 3, ran)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "document", UpdateKind(tele.Update{Message: &tele.Message{Document: &tele.Document{}}}))
	assert.Equal(t, "message", UpdateKind(tele.Update{Message: &tele.Message{Text: "x"}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	b := offlineBot(t)
	var seen any
	h := Recover(func(_ tele.Context, r any) { seen = r })(func(tele.Context) error { panic("boom") })

	err := h(textFrom(b, 1, "x"))
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, "boom", seen)
}

type quietContext struct{ tele.Context }

func (quietContext) Send(interface{}, ...interface{}) error { return nil }

func TestRepliesCountsFilesAndKeyboards(t *testing.T) {
	c := quietContext{textFrom(offlineBot(t), 1, "/merge")}
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		require.NoError(t, c.Send("Send the files to merge"))
		require.NoError(t, c.Send("Done?", &tele.ReplyMarkup{}))
		return c.Send(&tele.Document{FileName: "out.vcf"})
	})
	require.NoError(t, h(c))

	assert.Equal(t, ReplyStats{Messages: 2, Files: 1, Keyboard: true}, Replies(c))
}
