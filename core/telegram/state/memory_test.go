package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlow struct {
	name    string
	busy    bool
	expired int
}

func (f *fakeFlow) Name() string              { return f.name }
func (f *fakeFlow) Busy() bool                { return f.busy }
func (f *fakeFlow) Expire(ctx context.Context) { f.expired++ }

func TestManagerStartReplaceFinish(t *testing.T) {
	m := NewManager[*fakeFlow](time.Minute)
	a := &fakeFlow{name: "a"}
	b := &fakeFlow{name: "b"}

	_, replaced := m.Start(1, a)
	assert.False(t, replaced)
	prev, replaced := m.Start(1, b)
	require.True(t, replaced)
	assert.Same(t, a, prev)

	m.Finish(1, a)
	assert.True(t, m.InProgress(1), "finishing a stale flow must not remove the current one")
	m.Finish(1, b)
	assert.False(t, m.InProgress(1))
}

func TestManagerSweepExpiresIdleOnly(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewManager[*fakeFlow](time.Minute)
	m.now = func() time.Time { return now }

	idle := &fakeFlow{name: "idle"}
	busy := &fakeFlow{name: "busy", busy: true}
	fresh := &fakeFlow{name: "fresh"}
	m.Start(1, idle)
	m.Start(2, busy)

	now = now.Add(50 * time.Second)
	m.Start(3, fresh)

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, m.Sweep(context.Background()))
	assert.Equal(t, 1, idle.expired)
	assert.Zero(t, busy.expired)
	assert.Zero(t, fresh.expired)
	assert.False(t, m.InProgress(1))
	assert.True(t, m.InProgress(2))
	assert.True(t, m.InProgress(3))
}

func TestManagerGetTouches(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewManager[*fakeFlow](time.Minute)
	m.now = func() time.Time { return now }
	f := &fakeFlow{name: "f"}
	m.Start(1, f)

	now = now.Add(40 * time.Second)
	_, ok := m.Get(1)
	require.True(t, ok)
	now = now.Add(40 * time.Second)

	assert.Zero(t, m.Sweep(context.Background()))
	assert.Zero(t, f.expired)
}

func TestManagerIdleClockStartsWhenStepEnds(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewManager[*fakeFlow](time.Minute)
	m.now = func() time.Time { return now }
	f := &fakeFlow{name: "f"}
	m.Start(1, f)

	got, release, ok := m.Acquire(1)
	require.True(t, ok)
	assert.Same(t, f, got)

	// A step that outlives the ttl, e.g. a slow download.
	now = now.Add(5 * time.Minute)
	assert.Zero(t, m.Sweep(context.Background()), "a held flow must not expire")
	release()

	now = now.Add(30 * time.Second)
	assert.Zero(t, m.Sweep(context.Background()))
	assert.Zero(t, f.expired)

	now = now.Add(31 * time.Second)
	assert.Equal(t, 1, m.Sweep(context.Background()))
	assert.Equal(t, 1, f.expired)
}

func TestManagerHoldBlocksExpiryWithoutBusy(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewManager[*fakeFlow](time.Minute)
	m.now = func() time.Time { return now }
	f := &fakeFlow{name: "f"}
	m.Start(1, f)

	release := m.Hold(1, f)
	now = now.Add(2 * time.Minute)
	assert.Zero(t, m.Sweep(context.Background()))
	assert.True(t, m.InProgress(1))

	release()
	release()
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep(context.Background()))
}

func TestManagerHoldIgnoresStaleFlow(t *testing.T) {
	m := NewManager[*fakeFlow](time.Minute)
	a := &fakeFlow{name: "a"}
	m.Start(1, &fakeFlow{name: "b"})
	m.Hold(1, a)()

	_, release, ok := m.Acquire(2)
	assert.False(t, ok)
	release()
}
