// Package videoout implements the video render loop of spec.md §4.6:
// pull decoded frames, decide display time against the master Clock,
// drive the Renderer, and apply the drop policy.
//
// Grounded on controller_stream.go's scheduleLoop (PTS-to-wall-clock
// scheduling, condition-variable-style pause handling) generalized from
// a single hardcoded channel into the shared queue.Queue, and on
// player.go's copyFrame for the actual pixel hand-off to the renderer.
package videoout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avcore/player/internal/clock"
	"github.com/avcore/player/internal/decode"
	"github.com/avcore/player/internal/log"
	"github.com/avcore/player/internal/queue"
	"github.com/avcore/player/internal/render"
)

// DefaultQueueCapacity is spec.md §4.6's "default 30".
const DefaultQueueCapacity = 30

// Config carries the tunables spec.md §6 exposes as recognized options
// ("queue capacities, drop/repeat thresholds, sync max-delay clamp").
type Config struct {
	QueueCapacity int
	// DropThreshold: frames this far or further behind the master clock
	// are dropped instead of presented (spec.md §8's drop policy).
	DropThreshold time.Duration
	// MaxDelay / MaxSpeedup clamp the scheduling delay computed from
	// frame_norm_pts - master_clock(now), per spec.md §4.7.
	MaxDelay    time.Duration
	MaxSpeedup  time.Duration
	Width       int
	Height      int
}

func DefaultConfig(width, height int) Config {
	return Config{
		QueueCapacity: DefaultQueueCapacity,
		DropThreshold: 80 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		MaxSpeedup:    100 * time.Millisecond,
		Width:         width,
		Height:        height,
	}
}

var pkgLogger = log.For("videoout")

// Stats are the per-session counters spec.md §4.6 step 7 asks for.
type Stats struct {
	Presented int64
	Dropped   int64
}

// Player pulls decoded video frames, schedules their presentation, and
// reports the rendered PTS back to the Clock.
type Player struct {
	queue    *queue.Queue[decode.VideoFrame]
	clock    *clock.Clock
	renderer render.Renderer
	cfg      Config

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool

	stopped    atomic.Bool
	generation atomic.Uint64

	presented atomic.Int64
	dropped   atomic.Int64
}

func New(clk *clock.Clock, renderer render.Renderer, cfg Config) *Player {
	p := &Player{
		queue:    queue.New[decode.VideoFrame](cfg.QueueCapacity),
		clock:    clk,
		renderer: renderer,
		cfg:      cfg,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push enqueues a decoded frame, blocking the video-decode task on
// backpressure until ctx is cancelled.
func (p *Player) Push(ctx context.Context, frame decode.VideoFrame) bool {
	return p.queue.Push(ctx, frame)
}

// SetPaused implements step 1 of the render loop: a paused player waits
// on the pause condition instead of consuming frames.
func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	if !paused {
		p.cond.Broadcast()
	}
}

// ClearQueue discards queued frames (spec.md §4.10 step 4).
func (p *Player) ClearQueue() {
	p.queue.Clear()
}

// SetGeneration advances the generation counter so frames produced
// before a seek are silently discarded when they eventually surface
// (spec.md §4.10 step 10).
func (p *Player) SetGeneration(generation uint64) {
	p.generation.Store(generation)
}

// Flush is ClearQueue followed by SetGeneration, for callers that don't
// need the two seek steps kept apart.
func (p *Player) Flush(newGeneration uint64) {
	p.ClearQueue()
	p.SetGeneration(newGeneration)
}

// Stop terminates the render loop and wakes any paused wait.
func (p *Player) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.queue.Close()
}

func (p *Player) Stats() Stats {
	return Stats{Presented: p.presented.Load(), Dropped: p.dropped.Load()}
}

// Run executes the render loop described in spec.md §4.6 until ctx is
// cancelled or Stop is called. Intended to run on its own goroutine
// (the "video render thread" of spec.md §5).
func (p *Player) Run(ctx context.Context) {
	for {
		if p.stopped.Load() || ctx.Err() != nil {
			return
		}

		// step 1: wait while paused
		p.mu.Lock()
		for p.paused && !p.stopped.Load() && ctx.Err() == nil {
			p.cond.Wait()
		}
		p.mu.Unlock()
		if p.stopped.Load() || ctx.Err() != nil {
			return
		}

		// step 2: pop next frame, or wait (Pop blocks)
		frame, ok := p.queue.Pop(ctx)
		if !ok {
			return
		}
		if frame.Generation < p.generation.Load() {
			continue // stale frame from before the last seek
		}

		pts, err := frame.Frame.PresentationOffset()
		if err != nil {
			pkgLogger.Warn("frame missing presentation offset, dropping: %v", err)
			continue
		}
		normPTS := p.clock.NormalizeVideo(pts)

		// step 3+4: compute target display time, apply drop/clamp policy
		now := time.Now()
		masterNow := p.clock.MasterClock(now)
		delay := normPTS - masterNow
		if -delay >= p.cfg.DropThreshold {
			p.dropped.Add(1)
			continue
		}
		delay = clampDuration(delay, -p.cfg.MaxSpeedup, p.cfg.MaxDelay)

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		// step 5: submit to renderer
		data := frame.Frame.Data()
		if err := p.renderer.RenderFrame(render.Frame{RGBA: data, Width: p.cfg.Width, Height: p.cfg.Height}); err != nil {
			pkgLogger.Warn("render frame failed: %v", err)
			continue
		}
		if err := p.renderer.Present(); err != nil {
			pkgLogger.Warn("present failed: %v", err)
		}

		// step 6: update video clock with actual render wall time
		p.clock.UpdateVideo(normPTS, time.Now())

		// step 7: statistics
		p.presented.Add(1)
	}
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
