// Package player is the public façade over the playback pipeline core:
// open a URL, get synchronized audio/video output and transport
// controls (Play/Pause/Stop/Seek), and a state machine UI code can
// observe.
//
// The public surface mirrors the teacher package's Player (Open/Play/
// Pause/Stop/Seek/Position/Duration/Volume/Mute/Close), but the
// implementation underneath is now a five-task supervised pipeline
// (internal/pipeline) instead of one of three interchangeable
// videoController implementations, since the distilled spec's scope —
// network sources, hardware-context modeling, random-access seek as its
// own protocol, explicit A/V sync math — goes well past what a single
// struct's method set comfortably holds.
package player

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/avcore/player/internal/pipeline"
	"github.com/avcore/player/internal/render"
	"github.com/avcore/player/internal/state"
	"github.com/avcore/player/internal/videoout"
)

// State is the player lifecycle described in spec.md §3/§4.9.
type State = state.State

const (
	StateIdle      = state.Idle
	StateOpening   = state.Opening
	StateBuffering = state.Buffering
	StatePlaying   = state.Playing
	StatePaused    = state.Paused
	StateSeeking   = state.Seeking
	StateStopped   = state.Stopped
	StateError     = state.Error
)

// StateObserver is invoked synchronously on every State transition.
type StateObserver = state.Observer

// Config carries the options recognized at Open, per spec.md §6.
type Config struct {
	// Looping enables automatic restart-from-zero at end of stream
	// (spec.md's supplemented looping feature).
	Looping bool
	// IgnoreAudio forces video-only playback even if the source has an
	// audio stream, mirroring the teacher's NewPlayerWithoutAudio.
	IgnoreAudio bool
	// AudioContext, if non-nil, is reused instead of probing url and
	// creating a new one. When nil, Open reuses the process's existing
	// audio.Context if there is one (Ebitengine allows only one per
	// process), and otherwise creates one sized to url's audio.
	AudioContext *audio.Context
}

// Player is one open playback session.
type Player struct {
	sessionID uuid.UUID
	ctrl      *pipeline.Controller
	software  *render.SoftwareRenderer
	proxy     *render.ThreadAffinityProxy
}

// Open starts a new playback session for url (a local path or an
// http(s)/rtsp/rtmp/udp URL, per spec.md §4.1).
func Open(url string, cfg Config) (*Player, *PlaybackError) {
	sessionID := uuid.New()
	pkgLogger.Printf("session %s: opening %q", sessionID, url)

	audioCtx := cfg.AudioContext
	if !cfg.IgnoreAudio && audioCtx == nil {
		if existing := audio.CurrentContext(); existing != nil {
			audioCtx = existing
		} else {
			ctx, aErr := NewAudioContextForURL(url)
			switch {
			case aErr == nil:
				audioCtx = ctx
			case errors.Is(aErr, ErrNoAudio):
				// video-only source: proceed without an audio.Context.
			default:
				return nil, aErr
			}
		}
	}

	software := render.NewSoftwareRenderer()
	proxy := render.NewThreadAffinityProxy(software)

	pipelineCfg := pipeline.DefaultConfig(0, 0)
	pipelineCfg.Looping = cfg.Looping

	ctrl, err := pipeline.Open(context.Background(), url, proxy, audioCtx, pipelineCfg)
	if err != nil {
		pkgLogger.Error("session %s: open failed: %v", sessionID, err)
		return nil, err
	}

	pkgLogger.Printf("session %s: opened, audio=%v", sessionID, ctrl.HasAudio())
	return &Player{sessionID: sessionID, ctrl: ctrl, software: software, proxy: proxy}, nil
}

// --- transport ---

func (p *Player) Play() *PlaybackError  { return p.ctrl.Play() }
func (p *Player) Pause() *PlaybackError { return p.ctrl.Pause() }
func (p *Player) Stop() *PlaybackError  { return p.ctrl.Stop() }

// Seek requests a move to position, relative to the start of the
// stream. It returns immediately; the transition out of StateSeeking
// (observable via Observe) marks completion, per spec.md §4.10. A
// non-nil return of ErrAlreadySeeking means this request superseded an
// older one still pending, not that it failed — the newer request
// still runs.
func (p *Player) Seek(position time.Duration) *PlaybackError {
	return p.ctrl.Seek(position, true)
}

// Acknowledge clears a latched StateError so playback can resume after
// the application has observed and handled the failure (spec.md §4.9).
func (p *Player) Acknowledge() { p.ctrl.Acknowledge() }

// Close tears the session down and releases every underlying resource.
// The Player is unusable afterward. Safe to call more than once.
func (p *Player) Close() error {
	pkgLogger.Printf("session %s: closing", p.sessionID)
	return p.ctrl.Close()
}

// --- timing ---

func (p *Player) Position() time.Duration { return p.ctrl.Position() }
func (p *Player) Duration() time.Duration { return p.ctrl.Duration() }

// --- state ---

func (p *Player) State() State                { return p.ctrl.State() }
func (p *Player) Observe(obs StateObserver)    { p.ctrl.Observe(obs) }

// --- audio ---

func (p *Player) HasAudio() bool        { return p.ctrl.HasAudio() }
func (p *Player) GetVolume() float64    { return p.ctrl.GetVolume() }
func (p *Player) SetVolume(v float64)   { p.ctrl.SetVolume(v) }
func (p *Player) GetMuted() bool        { return p.ctrl.GetMuted() }
func (p *Player) SetMuted(muted bool)   { p.ctrl.SetMuted(muted) }
func (p *Player) SetLooping(loop bool)  { p.ctrl.SetLooping(loop) }
func (p *Player) GetLooping() bool      { return p.ctrl.GetLooping() }

// --- rendering ---

// Draw presents the current video frame into screen. Must be called
// from the application's render/UI thread, once per engine frame (e.g.
// Ebitengine's own Draw callback) — this is also the thread every
// pending Renderer call queued from other goroutines is drained onto,
// per internal/render.ThreadAffinityProxy's contract.
func (p *Player) Draw(screen *ebiten.Image) {
	p.proxy.DrainPending()
	p.software.DrawInto(screen)
}

// Resize notifies the renderer of a viewport resolution change, so it
// can recreate backing textures on the next Draw (spec.md §4.8).
func (p *Player) Resize(width, height int) {
	p.proxy.OnResize(width, height)
}

// Stats returns the video render loop's present/drop counters, per
// spec.md §4.6 step 7.
func (p *Player) Stats() videoout.Stats { return p.ctrl.VideoStats() }

// RendererName reports which Renderer implementation is active.
func (p *Player) RendererName() string { return p.ctrl.RendererName() }
