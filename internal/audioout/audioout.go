// Package audioout owns the output device callback and drives the
// master Clock from sample-accurate playback position, per spec.md
// §4.5.
//
// Grounded directly on controller_yes_audio.go: Player implements
// io.Reader and is handed to audio.Context.NewPlayer (the teacher's
// noLockCreateAudioPlayer / Read), with SetBufferSize/SetVolume carried
// over unchanged. The single-controller leftoverAudio + Read loop is
// generalized into a bounded queue of *resample.ResampledAudioFrame
// (default capacity 50, per spec.md §4.5) plus explicit
// current-frame/offset partial-frame tracking, since Read can now be
// asked for less than one whole queued frame at a time.
package audioout

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/avcore/player/internal/clock"
	"github.com/avcore/player/internal/errkind"
	"github.com/avcore/player/internal/log"
	"github.com/avcore/player/internal/queue"
	"github.com/avcore/player/internal/resample"
)

// DefaultQueueCapacity is spec.md §4.5's "default capacity 50".
const DefaultQueueCapacity = 50

// DefaultBufferSize mirrors the teacher's playerBufferSize: 200ms is
// comfortable on desktop; spec.md §6 targets <=50ms end-to-end on
// Windows via WASAPI shared mode, but that budget belongs to the
// platform audio backend's own buffer, not this queue-backed reader.
const DefaultBufferSize = 200 * time.Millisecond

var pkgLogger = log.For("audioout")

// Player owns the bounded resampled-audio queue and the io.Reader
// adapter the platform audio API pulls from. Exactly one decode task
// produces into it and exactly one device callback consumes from it
// (spec.md §5: "queues are private to one producer + one consumer").
type Player struct {
	queue      *queue.Queue[*resample.ResampledAudioFrame]
	clock      *clock.Clock
	sampleRate int
	channels   int

	ebitenPlayer *audio.Player

	// current-frame/offset partial-frame tracking (spec.md §4.5); touched
	// from the device callback thread and by Flush, which is called only
	// while the device is paused. No lock guards them.
	current          *resample.ResampledAudioFrame
	offset           int
	consecutiveFills int // silence fills in a row, for starvation logging

	// reported after every non-silent fill
	basePTSMs              atomic.Int64
	samplesPlayedSinceBase atomic.Int64

	mu     sync.Mutex // guards volume/muted only
	volume float64
	muted  bool
}

// New creates a Player targeting the given device sample rate/channel
// count and reporting position to clk.
func New(clk *clock.Clock, sampleRate, channels int) *Player {
	return &Player{
		queue:      queue.New[*resample.ResampledAudioFrame](DefaultQueueCapacity),
		clock:      clk,
		sampleRate: sampleRate,
		channels:   channels,
		volume:     1.0,
	}
}

// Attach creates the underlying Ebitengine audio.Player reading from p,
// mirroring noLockCreateAudioPlayer's SetBufferSize/SetVolume sequence.
func (p *Player) Attach(ctx *audio.Context, bufferSize time.Duration) *errkind.Error {
	player, err := ctx.NewPlayer(readerAdapter{p})
	if err != nil {
		return errkind.Wrap(errkind.DeviceInitFailed, "audioout.Attach", "failed to create device player", err)
	}
	player.SetBufferSize(bufferSize)
	player.SetVolume(p.effectiveVolume())
	p.ebitenPlayer = player
	return nil
}

// Push enqueues a resampled frame, blocking the decode task on
// backpressure until ctx is cancelled (spec.md §4.5).
func (p *Player) Push(ctx context.Context, frame *resample.ResampledAudioFrame) bool {
	return p.queue.Push(ctx, frame)
}

// Play/PauseDevice/Close delegate straight to the underlying device player.
func (p *Player) Play()        { p.ebitenPlayer.Play() }
func (p *Player) PauseDevice() { p.ebitenPlayer.Pause() }
func (p *Player) Close() error { return p.ebitenPlayer.Close() }

// Position returns the number of interleaved samples (all channels
// counted) copied out of the current frame since its base PTS was
// recorded; it is reset each time Read starts a new queued frame.
func (p *Player) Position() (samplesPlayed int64) {
	return p.samplesPlayedSinceBase.Load()
}

func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	if p.ebitenPlayer != nil {
		p.ebitenPlayer.SetVolume(p.effectiveVolume())
	}
}

func (p *Player) GetVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	if p.ebitenPlayer != nil {
		p.ebitenPlayer.SetVolume(p.effectiveVolume())
	}
}

func (p *Player) GetMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Player) effectiveVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted {
		return 0
	}
	return p.volume
}

// Flush drains the software queue and drops the partially played current
// frame. PCM already handed to the device player's own buffer is not
// discarded. Must only be called while paused.
func (p *Player) Flush() {
	p.queue.Clear()
	p.current = nil
	p.offset = 0
}

const bytesPerSample = 2 // S16LE

// readerAdapter is the io.Reader the Ebitengine audio.Context pulls
// from; kept as a distinct type (rather than Player implementing
// io.Reader directly) so Player's exported surface doesn't also
// advertise Read, matching the teacher's `&struct{ io.Reader }{c}`
// pattern of hiding Read from the public controller interface.
type readerAdapter struct{ p *Player }

// Read is the device callback's hot path: memcpy only, per spec.md
// §4.5 ("any computation ... is forbidden"). Resampling already
// happened upstream in the decode task; this just copies bytes out of
// already-resampled frames and tracks sample-accurate position.
func (r readerAdapter) Read(buffer []byte) (int, error) {
	p := r.p
	frameBytes := bytesPerSample * p.channels
	if rem := len(buffer) % frameBytes; rem != 0 {
		buffer = buffer[:len(buffer)-rem]
	}

	var servedBytes int
	nonSilent := false

	for len(buffer) > 0 {
		if p.current == nil {
			frame, ok := p.queue.TryPop()
			if !ok {
				// starvation: fill remaining space with silence, never
				// touch the Clock (spec.md §4.5).
				for i := range buffer {
					buffer[i] = 0
				}
				servedBytes += len(buffer)
				buffer = buffer[:0]
				p.consecutiveFills++
				if p.consecutiveFills == 25 {
					pkgLogger.Warn("audio queue starved for %d consecutive fills", p.consecutiveFills)
				}
				break
			}
			p.consecutiveFills = 0
			p.current = frame
			p.offset = 0
			p.basePTSMs.Store(frame.PTSMs)
			p.samplesPlayedSinceBase.Store(0)
		}

		n := copy(buffer, p.current.PCM[p.offset:])
		p.offset += n
		buffer = buffer[n:]
		servedBytes += n
		nonSilent = true

		p.samplesPlayedSinceBase.Add(int64(n / bytesPerSample))

		if p.offset >= len(p.current.PCM) {
			p.current = nil
			p.offset = 0
		}
	}

	if nonSilent {
		p.reportToClock()
	}
	return servedBytes, nil
}

// reportToClock implements spec.md §4.5's "current playback PTS =
// base_pts_ms + samples_played * 1000 / rate".
func (p *Player) reportToClock() {
	if p.clock == nil {
		return
	}
	basePTS := p.basePTSMs.Load()
	samplesPlayed := p.samplesPlayedSinceBase.Load()
	perChannelSamples := samplesPlayed / int64(p.channels)
	ptsMs := basePTS + perChannelSamples*1000/int64(p.sampleRate)
	norm := p.clock.NormalizeAudio(time.Duration(ptsMs) * time.Millisecond)
	p.clock.UpdateAudio(norm, time.Now())
}

var _ io.Reader = readerAdapter{}
