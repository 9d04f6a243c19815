package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSerializes(t *testing.T) {
	g := New(1)
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			require.NoError(t, err)
			defer release()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, g.InFlight())
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := New(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := New(2)
	r1, err := g.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, g.InFlight())

	r1()
	r1()
	assert.Equal(t, 1, g.InFlight())

	r3, err := g.Acquire(context.Background())
	require.NoError(t, err)
	r2()
	r3()
	assert.Zero(t, g.InFlight())
}

func TestGateWidthDefaults(t *testing.T) {
	assert.Equal(t, 1, New(0).Width())
	assert.Equal(t, 1, New(-4).Width())
	assert.Equal(t, 3, New(3).Width())
}
