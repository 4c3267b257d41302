// Package pipeline implements the Playback Controller of spec.md §4.9:
// the component that owns a Demuxer, a pair of decoders, the resampler,
// the audio/video output players, the master Clock, and the lifecycle
// State Manager, and supervises the goroutines that move data between
// them.
//
// Grounded on controller_stream.go's goroutine pair (decodeLoop /
// scheduleLoop guarded by stopCh/wg, with the mutex released before any
// blocking wait so Stop can never self-deadlock), generalized from two
// goroutines into five tasks — demux, video decode, audio decode, video
// render (internal/videoout.Player.Run), and the seek worker
// (internal/seek.Worker.Run) — supervised as one cancelable group by
// golang.org/x/sync/errgroup instead of a raw sync.WaitGroup.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"golang.org/x/sync/errgroup"

	"github.com/avcore/player/internal/audioout"
	"github.com/avcore/player/internal/clock"
	"github.com/avcore/player/internal/decode"
	"github.com/avcore/player/internal/demux"
	"github.com/avcore/player/internal/errkind"
	"github.com/avcore/player/internal/hwaccel"
	"github.com/avcore/player/internal/log"
	"github.com/avcore/player/internal/queue"
	"github.com/avcore/player/internal/render"
	"github.com/avcore/player/internal/resample"
	"github.com/avcore/player/internal/seek"
	"github.com/avcore/player/internal/state"
	"github.com/avcore/player/internal/videoout"
)

var pkgLogger = log.For("pipeline")

// packetQueueCapacity is this module's choice for the two packet-stage
// queues of spec.md's dataflow diagram. Packets are still compressed,
// so holding more of them costs less than holding that many decoded
// frames; spec.md doesn't pin an exact number here (only the frame-side
// queues get default capacities), so this follows the same order of
// magnitude as those.
const packetQueueCapacity = 64

// loopSeekRetryDelay avoids a tight ReadPacket/EOF spin between the
// moment DemuxTask observes end-of-stream for a looping source and the
// seek worker, running on its own goroutine, actually starts the
// rewind (see demuxTask).
const loopSeekRetryDelay = 10 * time.Millisecond

// outputChannels is the fixed device-side channel count every source is
// resampled/mixed down (or up) to, per spec.md §4.4/§6: the output side
// of resample.Format and audioout.New must always target this, never
// the source stream's own channel count.
const outputChannels = 2

// hwaccelDPBSize/hwaccelRenderBuffering/hwaccelMargin feed
// hwaccel.PoolSize's initial_pool_size formula (spec.md §4.3). These are
// generic defaults, not probed per-codec, since nothing in this module
// decodes hardware surfaces today; a real backend would source dpbSize
// from the codec's own DPB depth.
const (
	hwaccelDPBSize         = 8
	hwaccelRenderBuffering = 6
	hwaccelMargin          = 4
)

// Config carries the tunables this controller needs beyond what a
// Demuxer/Renderer already know about themselves.
type Config struct {
	Looping       bool
	VideoConfig   videoout.Config
	AudioBufferMs time.Duration
}

// DefaultConfig derives sane defaults from the active video stream's
// resolution.
func DefaultConfig(width, height int) Config {
	return Config{
		VideoConfig:   videoout.DefaultConfig(width, height),
		AudioBufferMs: audioout.DefaultBufferSize,
	}
}

// Controller is the Playback Controller: one instance per open session.
type Controller struct {
	cfg Config

	demuxer *demux.Demuxer
	// demuxMu serializes every call into demuxer: both demuxTask's
	// ReadPacket loop and the seek worker's SeekDemuxer step run on
	// distinct goroutines, and demux.Demuxer is documented as usable
	// by only one caller at a time. A mutex is a pragmatic deviation
	// from "exactly one owning goroutine" (spec.md §5) in exchange for
	// not having to route seek through a request channel into demuxTask;
	// ReadPacket's own read-timeout bounds how long a seek can be stuck
	// waiting behind it on network sources.
	demuxMu sync.Mutex

	videoDecoder *decode.VideoDecoder
	audioDecoder *decode.AudioDecoder // nil if the source has no audio
	resampler    *resample.Resampler  // nil if the source has no audio

	videoPacketQueue *queue.Queue[demux.Packet]
	audioPacketQueue *queue.Queue[demux.Packet] // nil if the source has no audio

	clock       *clock.Clock
	states      *state.Manager
	videoPlayer *videoout.Player
	audioPlayer *audioout.Player // nil if the source has no audio
	renderer    render.Renderer
	seekWorker  *seek.Worker

	looping    atomic.Bool
	generation atomic.Uint64
	closed     atomic.Bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Open probes url, wires every component described above, and starts
// the five supervised tasks. The returned Controller begins in
// Buffering state; the caller transitions to Playing/Paused explicitly
// once it's ready, per spec.md §4.9's Open→Opening→Buffering→.../Idle.
func Open(ctx context.Context, url string, renderer render.Renderer, audioCtx *audio.Context, cfg Config) (*Controller, *errkind.Error) {
	states := state.New()
	states.Transition(state.Opening)

	d, err := demux.Open(url)
	if err != nil {
		states.Fail(err)
		return nil, err
	}

	videoInfo, _ := d.ActiveStream(demux.KindVideo)
	if cfg.VideoConfig.Width == 0 {
		cfg.VideoConfig = videoout.DefaultConfig(videoInfo.Width, videoInfo.Height)
	}
	if rErr := renderer.Init(videoInfo.Width, videoInfo.Height); rErr != nil {
		d.Close()
		wrapped := errkind.Wrap(errkind.RenderError, "pipeline.Open", "renderer init failed", rErr)
		states.Fail(wrapped)
		return nil, wrapped
	}

	videoDecoder := d.NewVideoDecoder()
	hwCtx, hErr := hwaccel.Initialize(hwaccel.BackendNone, hwaccelDPBSize, hwaccelRenderBuffering, hwaccelMargin, true)
	if hErr != nil {
		d.Close()
		states.Fail(hErr)
		return nil, hErr
	}
	if oErr := videoDecoder.Open(hwCtx); oErr != nil {
		d.Close()
		states.Fail(oErr)
		return nil, oErr
	}

	clk := clock.New()
	c := &Controller{
		cfg:              cfg,
		demuxer:          d,
		videoDecoder:     videoDecoder,
		videoPacketQueue: queue.New[demux.Packet](packetQueueCapacity),
		clock:            clk,
		states:           states,
		videoPlayer:      videoout.New(clk, renderer, cfg.VideoConfig),
		renderer:         renderer,
	}
	c.looping.Store(cfg.Looping)

	if audioDecoder, ok := d.NewAudioDecoder(); ok {
		audioInfo, _ := d.ActiveStream(demux.KindAudio)
		if audioCtx == nil {
			d.Close()
			states.Fail(errkind.ErrNilAudioContext)
			return nil, errkind.ErrNilAudioContext
		}
		if audioInfo.Channels > 2 {
			d.Close()
			states.Fail(errkind.ErrTooManyChannels)
			return nil, errkind.ErrTooManyChannels
		}

		c.audioDecoder = audioDecoder
		c.audioPacketQueue = queue.New[demux.Packet](packetQueueCapacity)
		c.resampler = resample.New(
			resample.Format{SampleRate: audioInfo.SampleRate, Channels: audioInfo.Channels},
			resample.Format{SampleRate: audioCtx.SampleRate(), Channels: outputChannels},
		)
		c.audioPlayer = audioout.New(clk, audioCtx.SampleRate(), outputChannels)
		bufferMs := cfg.AudioBufferMs
		if bufferMs <= 0 {
			bufferMs = audioout.DefaultBufferSize
		}
		if aErr := c.audioPlayer.Attach(audioCtx, bufferMs); aErr != nil {
			d.Close()
			states.Fail(aErr)
			return nil, aErr
		}
	} else {
		clk.SetMode(clock.VideoMaster)
	}

	c.seekWorker = seek.NewWorker(c)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	c.group = group

	group.Go(func() error { return c.demuxTask(groupCtx) })
	group.Go(func() error { return c.videoDecodeTask(groupCtx) })
	if c.audioDecoder != nil {
		group.Go(func() error { return c.audioDecodeTask(groupCtx) })
	}
	group.Go(func() error { c.videoPlayer.Run(groupCtx); return nil })
	group.Go(func() error { c.seekWorker.Run(groupCtx); return nil })

	states.Transition(state.Buffering)
	return c, nil
}

// --- public transport controls ---

func (c *Controller) Play() *errkind.Error {
	if c.closed.Load() {
		return errkind.ErrClosed
	}
	if c.states.Current() == state.Error {
		return c.states.LastError()
	}
	c.clock.Resume(time.Now())
	c.videoPlayer.SetPaused(false)
	if c.audioPlayer != nil {
		c.audioPlayer.Play()
	}
	c.states.Transition(state.Playing)
	return nil
}

func (c *Controller) Pause() *errkind.Error {
	if c.closed.Load() {
		return errkind.ErrClosed
	}
	if c.states.Current() == state.Error {
		return c.states.LastError()
	}
	c.clock.Pause(time.Now())
	c.videoPlayer.SetPaused(true)
	if c.audioPlayer != nil {
		c.audioPlayer.PauseDevice()
	}
	c.states.Transition(state.Paused)
	return nil
}

// Stop transitions to Stopped, stops the video render loop and cancels
// every task. It does not drain the queues or flush the decoders. The
// Controller is unusable afterward; Close still must be called to
// release the underlying media handles.
func (c *Controller) Stop() *errkind.Error {
	if c.closed.Load() {
		return errkind.ErrClosed
	}
	c.states.Transition(state.Stopped)
	c.videoPlayer.Stop()
	c.cancel()
	return nil
}

// Seek submits a new seek request, superseding any seek already in
// flight. It returns immediately; completion is observable via the
// state transition out of Seeking (spec.md §4.10). It returns ErrClosed
// once Close has run; otherwise a non-nil return means an older pending
// request was superseded, not that this one failed — the newer request
// still runs.
func (c *Controller) Seek(position time.Duration, backward bool) *errkind.Error {
	if c.closed.Load() {
		return errkind.ErrClosed
	}
	superseded := c.seekWorker.Submit(seek.NewRequest(position.Milliseconds(), backward))
	if superseded {
		return errkind.ErrAlreadySeeking
	}
	return nil
}

// Acknowledge clears a latched Error state so the next Open/transport
// call can proceed instead of short-circuiting on a stale failure,
// per spec.md §4.9's state machine ("Error is sticky until explicitly
// acknowledged").
func (c *Controller) Acknowledge() { c.states.Acknowledge() }

func (c *Controller) Position() time.Duration {
	return c.clock.MasterClock(time.Now())
}

func (c *Controller) Duration() time.Duration {
	return time.Duration(c.demuxer.Duration()) * time.Millisecond
}

func (c *Controller) HasAudio() bool { return c.audioPlayer != nil }

func (c *Controller) SetLooping(looping bool) { c.looping.Store(looping) }
func (c *Controller) GetLooping() bool        { return c.looping.Load() }

func (c *Controller) GetVolume() float64 {
	if c.audioPlayer == nil {
		return 0
	}
	return c.audioPlayer.GetVolume()
}

func (c *Controller) SetVolume(v float64) {
	if c.audioPlayer != nil {
		c.audioPlayer.SetVolume(v)
	}
}

func (c *Controller) GetMuted() bool {
	if c.audioPlayer == nil {
		return true
	}
	return c.audioPlayer.GetMuted()
}

func (c *Controller) SetMuted(muted bool) {
	if c.audioPlayer != nil {
		c.audioPlayer.SetMuted(muted)
	}
}

func (c *Controller) State() state.State         { return c.states.Current() }
func (c *Controller) Observe(obs state.Observer) { c.states.Observe(obs) }
func (c *Controller) VideoStats() videoout.Stats { return c.videoPlayer.Stats() }
func (c *Controller) RendererName() string       { return c.renderer.RendererName() }

// Close stops every task, waits for them to return, and releases the
// underlying media/device handles. Safe to call more than once.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.seekWorker.Stop()
	c.videoPlayer.Stop()
	c.cancel()
	if err := c.group.Wait(); err != nil {
		pkgLogger.Error("task group exited with error: %v", err)
	}
	if c.audioPlayer != nil {
		if err := c.audioPlayer.Close(); err != nil {
			pkgLogger.Warn("audio player close failed: %v", err)
		}
	}
	c.videoDecoder.Close()
	return c.demuxer.Close()
}

// --- tasks (spec.md §4.9) ---

func (c *Controller) demuxTask(ctx context.Context) error {
	for {
		c.demuxMu.Lock()
		pkt, err := c.demuxer.ReadPacket(ctx)
		c.demuxMu.Unlock()

		if err != nil {
			if errors.Is(err, demux.EOF) {
				if c.looping.Load() {
					c.seekWorker.Submit(seek.NewRequest(0, true))
					select {
					case <-time.After(loopSeekRetryDelay):
					case <-ctx.Done():
						return nil
					}
					continue
				}
				c.states.Transition(state.Stopped)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			var playbackErr *errkind.Error
			if !errors.As(err, &playbackErr) {
				playbackErr = errkind.Wrap(errkind.DemuxError, "pipeline.demuxTask", "packet read failed", err)
			}
			c.states.Fail(playbackErr)
			return playbackErr
		}

		switch pkt.Kind {
		case demux.KindVideo:
			if !c.videoPacketQueue.Push(ctx, pkt) {
				return nil
			}
		case demux.KindAudio:
			if c.audioPacketQueue != nil {
				if !c.audioPacketQueue.Push(ctx, pkt) {
					return nil
				}
			}
		}
	}
}

func (c *Controller) videoDecodeTask(ctx context.Context) error {
	for {
		pkt, ok := c.videoPacketQueue.Pop(ctx)
		if !ok {
			return nil
		}
		if err := c.videoDecoder.SendPacket(pkt.Generation); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.states.Fail(err)
			return err
		}
		for {
			frame, ok := c.videoDecoder.ReceivePendingFrames()
			if !ok {
				break
			}
			if frame.Generation < c.generation.Load() {
				continue // stale, from before the last seek
			}
			if !c.videoPlayer.Push(ctx, frame) {
				return nil
			}
		}
	}
}

func (c *Controller) audioDecodeTask(ctx context.Context) error {
	for {
		pkt, ok := c.audioPacketQueue.Pop(ctx)
		if !ok {
			return nil
		}
		if err := c.audioDecoder.SendPacket(pkt.Generation); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.states.Fail(err)
			return err
		}
		for {
			frame, ok := c.audioDecoder.ReceivePendingFrames()
			if !ok {
				break
			}
			if frame.Generation < c.generation.Load() {
				continue
			}
			resampled := c.resampler.Resample(frame.Data, frame.PTS)
			// Resample's converted path aliases an internal scratch
			// buffer that the next call overwrites; the queue retains
			// this frame past that point, so copy it on enqueue (its
			// own doc comment calls this out as the caller's job).
			owned := resample.ResampledAudioFrame{PTSMs: resampled.PTSMs, PCM: append([]byte(nil), resampled.PCM...)}
			if !c.audioPlayer.Push(ctx, &owned) {
				return nil
			}
		}
	}
}

// --- seek.Coordinator ---

var _ seek.Coordinator = (*Controller)(nil)

func (c *Controller) EnterSeeking() state.State {
	return c.states.Transition(state.Seeking)
}

func (c *Controller) PauseAVPlayers() {
	c.videoPlayer.SetPaused(true)
	if c.audioPlayer != nil {
		c.audioPlayer.PauseDevice()
	}
}

func (c *Controller) FlushAudioDevice() {
	if c.audioPlayer != nil {
		c.audioPlayer.Flush()
	}
}

func (c *Controller) ClearSoftwareQueues() {
	c.videoPacketQueue.Clear()
	if c.audioPacketQueue != nil {
		c.audioPacketQueue.Clear()
	}
	c.videoPlayer.ClearQueue()
}

func (c *Controller) FlushDecoders() {
	c.videoDecoder.Flush()
	if c.audioDecoder != nil {
		c.audioDecoder.Flush()
	}
	if c.resampler != nil {
		c.resampler.Reset()
	}
}

func (c *Controller) ClearRendererCaches() { c.renderer.ClearCaches() }

func (c *Controller) ResetClock(targetMs int64) {
	c.clock.ResetForSeek(time.Duration(targetMs)*time.Millisecond, time.Now())
}

// ResetPTSTracking is a no-op here: Clock.ResetForSeek already clears
// both streams' normalization origins, and the audio player's base PTS
// and sample count are not reset here but replaced when its Read pops
// the first post-seek frame (Flush has dropped the current one). Kept
// as its own Coordinator step because
// spec.md §4.10 numbers it separately from the clock reset, and a
// decoder backend with its own PTS cache would hook in here.
func (c *Controller) ResetPTSTracking() {}

func (c *Controller) SeekDemuxer(targetMs int64, backward bool) *errkind.Error {
	c.demuxMu.Lock()
	defer c.demuxMu.Unlock()
	return c.demuxer.Seek(time.Duration(targetMs)*time.Millisecond, backward)
}

func (c *Controller) BumpGeneration() uint64 {
	g := c.demuxer.Generation()
	c.generation.Store(g)
	c.videoPlayer.SetGeneration(g)
	return g
}

func (c *Controller) Restore(previous state.State) {
	switch previous {
	case state.Playing:
		c.videoPlayer.SetPaused(false)
		if c.audioPlayer != nil {
			c.audioPlayer.Play()
		}
	default:
		c.videoPlayer.SetPaused(true)
		if c.audioPlayer != nil {
			c.audioPlayer.PauseDevice()
		}
	}
	c.states.Transition(previous)
}

func (c *Controller) Fail(err *errkind.Error) { c.states.Fail(err) }
