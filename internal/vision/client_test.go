package vision

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/limiter"
)

type fakeRuntime struct {
	mu       sync.Mutex
	out      string
	err      error
	panicVal any
	delay    time.Duration
	requests []Request
	active   atomic.Int32
	peak     atomic.Int32
}

func (f *fakeRuntime) Load(context.Context) error { return nil }

func (f *fakeRuntime) Generate(ctx context.Context, req Request) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panicVal != nil {
		panic(f.panicVal)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.out, f.err
}

func testImage() image.Image { return image.NewRGBA(image.Rect(0, 0, 200, 100)) }

func TestAnalyzeSuccess(t *testing.T) {
	rt := &fakeRuntime{out: "<s>Une main</s>"}
	c := New(Options{Runtime: rt, MaxTokens: 256, ImageSize: 64})

	out := c.Analyze(context.Background(), testImage(), "<CAPTION>", " détaillée")

	require.True(t, out.OK(), "%+v", out)
	assert.Equal(t, "vision", out.Backend)
	assert.Equal(t, map[string]any{"<CAPTION>": "Une main"}, out.Payload())
	require.Len(t, rt.requests, 1)
	assert.Equal(t, "<CAPTION> détaillée", rt.requests[0].Prompt)
	assert.Equal(t, 256, rt.requests[0].MaxTokens)
	require.GreaterOrEqual(t, len(rt.requests[0].Image), 8)
	assert.Equal(t, "\x89PNG", string(rt.requests[0].Image[:4]))
}

func TestAnalyzeScalesCoordinatesToOriginalImage(t *testing.T) {
	rt := &fakeRuntime{out: "os<loc_0><loc_0><loc_999><loc_999>"}
	c := New(Options{Runtime: rt, ImageSize: 32})

	out := c.Analyze(context.Background(), testImage(), "<OD>", "")

	require.True(t, out.OK())
	r := out.Value.(map[string]any)["<OD>"].(Regions)
	assert.Equal(t, [][]float64{{0.1, 0.05, 199.9, 99.95}}, r.Bboxes)
}

func TestAnalyzeRuntimeErrorIsSoft(t *testing.T) {
	c := New(Options{Runtime: &fakeRuntime{err: errors.New("CUDA out of memory")}})

	out := c.Analyze(context.Background(), testImage(), "<CAPTION>", "")

	require.True(t, out.IsSoft())
	assert.ErrorIs(t, out.Err, ai.ErrVisionInference)
	assert.Contains(t, out.Message, "CUDA out of memory")
}

func TestAnalyzePanicIsSoft(t *testing.T) {
	gate := limiter.New(1)
	c := New(Options{Runtime: &fakeRuntime{panicVal: "index out of range"}, Gate: gate})

	out := c.Analyze(context.Background(), testImage(), "<CAPTION>", "")

	require.True(t, out.IsSoft())
	assert.ErrorIs(t, out.Err, ai.ErrVisionInference)
	assert.Zero(t, gate.InFlight(), "gate slot leaked after panic")
}

func TestAnalyzeTimeout(t *testing.T) {
	c := New(Options{Runtime: &fakeRuntime{delay: time.Second}, Timeout: 30 * time.Millisecond})

	out := c.Analyze(context.Background(), testImage(), "<CAPTION>", "")

	require.True(t, out.IsSoft())
	assert.ErrorIs(t, out.Err, ai.ErrVisionInference)
	assert.True(t, ai.IsTimeout(out.Err))
}

func TestAnalyzeWithoutRuntime(t *testing.T) {
	out := New(Options{}).Analyze(context.Background(), testImage(), "<CAPTION>", "")
	require.True(t, out.IsSoft())
	assert.ErrorIs(t, out.Err, ai.ErrVisionUnavailable)
}

func TestAnalyzeNilImage(t *testing.T) {
	out := New(Options{Runtime: &fakeRuntime{}}).Analyze(context.Background(), nil, "<CAPTION>", "")
	require.True(t, out.IsSoft())
}

func TestAnalyzeSerializesForwardPasses(t *testing.T) {
	rt := &fakeRuntime{out: "ok", delay: 10 * time.Millisecond}
	c := New(Options{Runtime: rt, Gate: limiter.New(1)})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.Analyze(context.Background(), testImage(), "<CAPTION>", "").OK())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), rt.peak.Load())
}

type gateWatcher struct {
	gate *limiter.Gate
	seen int
}

func (g *gateWatcher) Load(context.Context) error { return nil }

func (g *gateWatcher) Generate(context.Context, Request) (string, error) {
	g.seen = g.gate.InFlight()
	return "ok", nil
}

func TestAnalyzeHoldsGateDuringGeneration(t *testing.T) {
	gate := limiter.New(2)
	rt := &gateWatcher{gate: gate}

	out := New(Options{Runtime: rt, Gate: gate}).Analyze(context.Background(), testImage(), "<CAPTION>", "")

	require.True(t, out.OK())
	assert.Equal(t, 1, rt.seen)
	assert.Zero(t, gate.InFlight())
}
