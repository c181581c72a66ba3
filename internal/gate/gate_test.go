package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, New(0).Capacity())
	assert.Equal(t, 1, New(-3).Capacity())
	assert.Equal(t, 4, New(4).Capacity())
}

func TestGateBoundsConcurrency(t *testing.T) {
	const capacity = 3
	g := New(capacity)

	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), func() {
				n := cur.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				cur.Add(-1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(capacity))
	assert.Equal(t, 0, g.InFlight())
}

func TestDoReleasesOnPanic(t *testing.T) {
	g := New(1)
	func() {
		defer func() { _ = recover() }()
		_ = g.Do(context.Background(), func() { panic("boom") })
	}()
	assert.Equal(t, 0, g.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Acquire(ctx))
	g.Release()
}

func TestAcquireHonoursContext(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
}
