package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func TestAccessCommands(t *testing.T) {
	ta := newTestApp(t)
	run := func(h tele.HandlerFunc, from int64, text string) string {
		t.Helper()
		require.NoError(t, h(ta.message(from, text)))
		return ta.lastReply()
	}

	tests := []struct {
		name string
		h    tele.HandlerFunc
		text string
		want string
	}{
		{"add usage", ta.add, "/add", msgUsageAdd},
		{"add bad id", ta.add, "/add abc", msgBadID},
		{"add bad limit", ta.add, "/add 42 -1", msgBadLimit},
		{"add", ta.add, "/add 42", "User ID 42 was added to the whitelist."},
		{"add again", ta.add, "/add 42", "User ID 42 is already on the whitelist."},
		{"add again with limit", ta.add, "/add 42 3", "User ID 42 is already on the whitelist; the limit is now 3."},
		{"add with limit", ta.add, "/add 43 5", "User ID 43 was added to the whitelist with a limit of 5."},
		{"setlimit unknown", ta.setLimit, "/setlimit 99 1", "User ID 99 is not on the whitelist."},
		{"setlimit", ta.setLimit, "/setlimit 43 0", "The access limit for user ID 43 is now 0."},
		{"setlimit usage", ta.setLimit, "/setlimit 43", msgUsageSetLimit},
		{"setlimit unlimited", ta.setLimit, "/setlimit 43 unlimited", "User ID 43 now has unlimited access."},
		{"setlimit bad", ta.setLimit, "/setlimit 43 many", msgBadLimit},
		{"setlimit owner", ta.setLimit, "/setlimit 1 5", "User ID 1 is an owner. Use /removeowner first."},
		{"setlimit owner unlimited", ta.setLimit, "/setlimit 1 unlimited", "User ID 1 is an owner. Use /removeowner first."},
		{"remove owner", ta.remove, "/remove 1", "User ID 1 is an owner. Use /removeowner first."},
		{"remove", ta.remove, "/remove 43", "User ID 43 was removed from the whitelist."},
		{"remove missing", ta.remove, "/remove 43", "User ID 43 is not on the whitelist."},
		{"removeowner last", ta.removeOwner, "/removeowner 1", msgLastOwner},
		{"addowner usage", ta.addOwner, "/addowner", "Usage: /addowner <user_id>"},
		{"addowner", ta.addOwner, "/addowner 42", "User ID 42 is now an owner."},
		{"removeowner", ta.removeOwner, "/removeowner 42", "User ID 42 is no longer an owner."},
		{"removeowner missing", ta.removeOwner, "/removeowner 42", "User ID 42 is not an owner."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, run(tt.h, ownerID, tt.text), tt.name)
	}

	assert.True(t, ta.store.IsWhitelisted(42))
	assert.Nil(t, ta.store.Limit(42), "owners keep unlimited use after ownership is revoked")
	assert.False(t, ta.store.IsWhitelisted(43))
}

func TestWhitelistListing(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	_, err := ta.store.Add(ctx, 42, limit(3))
	require.NoError(t, err)

	require.NoError(t, ta.whitelist(ta.message(ownerID, "/whitelist")))
	assert.Equal(t, "Whitelisted users:\nUser ID: 1, limit: unlimited (owner)\nUser ID: 42, limit: 3", ta.lastReply())
}

func TestUserCommands(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, ta.getID(ta.message(77, "/getid")))
	assert.Equal(t, "Your ID is: 77", ta.lastReply())

	require.NoError(t, ta.checkLimit(ta.message(77, "/checklimit")))
	assert.Equal(t, msgNotListed, ta.lastReply())

	require.NoError(t, ta.start(ta.message(77, "/start")))
	assert.Equal(t, msgAccessDenied, ta.lastReply())

	_, err := ta.store.Add(ctx, 77, limit(4))
	require.NoError(t, err)
	require.NoError(t, ta.checkLimit(ta.message(77, "/checklimit")))
	assert.Equal(t, "Remaining uses: 4", ta.lastReply())

	require.NoError(t, ta.start(ta.message(77, "/start")))
	assert.Contains(t, ta.lastReply(), `/txt\_to\_vcf`)
	assert.NotContains(t, ta.lastReply(), "/whitelist")

	require.NoError(t, ta.start(ta.message(ownerID, "/start")))
	assert.Contains(t, ta.lastReply(), "/setlimit <id> <limit|unlimited>")

	require.NoError(t, ta.checkLimit(ta.message(ownerID, "/checklimit")))
	assert.Equal(t, msgNoLimit, ta.lastReply())
}

func TestBroadcast(t *testing.T) {
	ta := newTestApp(t)
	_, err := ta.store.Add(context.Background(), 42, nil)
	require.NoError(t, err)

	require.NoError(t, ta.broadcast(ta.message(ownerID, "/broadcast")))
	assert.Equal(t, msgUsageBroadcast, ta.lastReply())

	require.NoError(t, ta.broadcast(ta.message(ownerID, "/broadcast Maintenance at noon")))
	assert.Equal(t, "Broadcast queued for 2 of 2 users.", ta.lastReply())
	texts := ta.api.texts()
	assert.Equal(t, []string{"Maintenance at noon", "Maintenance at noon"}, texts)
}

func TestCommandMenuHidesOwnerCommands(t *testing.T) {
	ta := newTestApp(t)
	var names []string
	for _, c := range ta.reg.ListCommands(true) {
		names = append(names, c.Text)
	}
	assert.Contains(t, names, "merge")
	assert.NotContains(t, names, "restart")
	_, _, ok := ta.reg.LookupCommand("/help")
	assert.True(t, ok)
}
