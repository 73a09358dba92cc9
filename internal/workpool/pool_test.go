package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoReturnsResult(t *testing.T) {
	p := New(2)
	defer p.Close()

	f := Go(p, context.Background(), func(context.Context) (int, error) { return 42, nil })
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGoBoundsConcurrency(t *testing.T) {
	p := New(2)
	defer p.Close()

	var running, peak atomic.Int32
	futures := make([]*Future[struct{}], 6)
	for i := range futures {
		futures[i] = Go(p, context.Background(), func(context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		})
	}
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestGoRecoversPanics(t *testing.T) {
	p := New(1)
	defer p.Close()

	f := Go(p, context.Background(), func(context.Context) (string, error) { panic("boom") })
	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPanic)

	f2 := Go(p, context.Background(), func(context.Context) (string, error) { return "alive", nil })
	v, err := f2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alive", v, "worker survives a panicking job")
}

func TestWaitHonoursContext(t *testing.T) {
	p := New(1)
	defer p.Close()

	release := make(chan struct{})
	f := Go(p, context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGoAfterClose(t *testing.T) {
	p := New(1)
	p.Close()
	f := Go(p, context.Background(), func(context.Context) (int, error) { return 0, errors.New("never runs") })
	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
