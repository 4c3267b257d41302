package videoout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcore/player/internal/clock"
	"github.com/avcore/player/internal/decode"
	"github.com/avcore/player/internal/render"
)

// stubRenderer counts calls instead of touching any real graphics API.
type stubRenderer struct {
	frames   int
	presents int
}

func (s *stubRenderer) Init(width, height int) error    { return nil }
func (s *stubRenderer) RenderFrame(render.Frame) error   { s.frames++; return nil }
func (s *stubRenderer) Present() error                   { s.presents++; return nil }
func (s *stubRenderer) ClearCaches()                     {}
func (s *stubRenderer) OnResize(width, height int)       {}
func (s *stubRenderer) RendererName() string             { return "stub" }

var _ render.Renderer = (*stubRenderer)(nil)

func TestClampDuration(t *testing.T) {
	assert.Equal(t, -50*time.Millisecond, clampDuration(-500*time.Millisecond, -50*time.Millisecond, 100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, clampDuration(500*time.Millisecond, -50*time.Millisecond, 100*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, clampDuration(10*time.Millisecond, -50*time.Millisecond, 100*time.Millisecond))
}

func TestSetGenerationStoresGeneration(t *testing.T) {
	clk := clock.New()
	renderer := &stubRenderer{}
	p := New(clk, renderer, DefaultConfig(640, 480))

	p.SetGeneration(5)
	assert.Equal(t, uint64(5), p.generation.Load())
}

func TestStatsStartAtZero(t *testing.T) {
	clk := clock.New()
	p := New(clk, &stubRenderer{}, DefaultConfig(640, 480))
	stats := p.Stats()
	assert.Equal(t, int64(0), stats.Presented)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestClearQueueEmptiesBacklog(t *testing.T) {
	clk := clock.New()
	p := New(clk, &stubRenderer{}, Config{QueueCapacity: 4})

	ctx := context.Background()
	require.True(t, p.Push(ctx, decode.VideoFrame{Generation: 1}))
	require.True(t, p.Push(ctx, decode.VideoFrame{Generation: 1}))
	assert.Equal(t, 2, p.queue.Len())

	p.ClearQueue()
	assert.Equal(t, 0, p.queue.Len())
}

func TestStopClosesQueueAndEndsRun(t *testing.T) {
	clk := clock.New()
	p := New(clk, &stubRenderer{}, Config{QueueCapacity: 4})

	finished := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(finished)
	}()

	p.Stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
