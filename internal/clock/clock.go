// Package clock implements the master A/V synchronization clock described
// in spec.md §4.7. It is the analytical heart of the playback pipeline:
// PTS normalization per stream, an audio-master wall-clock mapping, drift
// smoothing for statistics, and pause/seek accounting.
//
// The update path (audio/video clock updates) and the read path
// (MasterClock) are both safe for concurrent use. MasterClock is lock-free
// on its fast path: the (PTS, wall) pair that matters for a read is stored
// as a single atomic pointer to an immutable sample, per spec.md §5's
// requirement that the pair be updated atomically together.
package clock

import (
	"sync/atomic"
	"time"
)

// Mode selects which stream drives the master clock (spec.md data model).
type Mode uint8

const (
	AudioMaster Mode = iota
	VideoMaster
	ExternalMaster
)

func (m Mode) String() string {
	switch m {
	case AudioMaster:
		return "AUDIO_MASTER"
	case VideoMaster:
		return "VIDEO_MASTER"
	case ExternalMaster:
		return "EXTERNAL_MASTER"
	default:
		return "UNKNOWN"
	}
}

// sample is the immutable (normalized PTS, wall-clock-at-that-PTS) pair
// the master clock projects forward from. Replaced atomically on every
// update so MasterClock never observes a torn PTS/wall pair.
type sample struct {
	normPTS time.Duration
	wall    time.Time
}

// streamOrigin tracks the per-stream PTS normalization origin (spec.md
// §3 invariant: "the normalization offset is fixed at the first frame of
// a session and reset only by seek").
type streamOrigin struct {
	has      atomic.Bool
	firstRaw atomic.Int64 // raw PTS of the first frame, in nanoseconds
}

func (o *streamOrigin) normalize(rawPTS time.Duration) time.Duration {
	if o.has.CompareAndSwap(false, true) {
		o.firstRaw.Store(int64(rawPTS))
		return 0
	}
	return rawPTS - time.Duration(o.firstRaw.Load())
}

func (o *streamOrigin) reset() {
	o.has.Store(false)
	o.firstRaw.Store(0)
}

// Clock is the process-wide A/V sync clock for one playback session. It
// is reset on Open and on every seek (ResetForSeek), per spec.md's data
// model table.
type Clock struct {
	audioOrigin streamOrigin
	videoOrigin streamOrigin

	mode atomic.Int32 // Mode

	master atomic.Pointer[sample] // authoritative (normPTS, wall) pair

	// pause accounting: wall time credited to pauses since the last
	// master-clock update. Reset to 0 whenever the master sample moves.
	paused           atomic.Bool
	pauseStartedAt   atomic.Int64 // unix nano, valid only while paused
	accumulatedPause atomic.Int64 // nanoseconds

	// drift statistics (smoothed, never fed back into the audio clock)
	driftAlpha    float64
	smoothedDrift atomic.Int64 // nanoseconds, exposed for statistics only

	// last normalized PTS passed to UpdateVideo, recorded in every mode;
	// no accessor reads it back
	lastVideoNormPTS atomic.Int64
}

// New creates a Clock in AudioMaster mode with a 0.1 drift smoothing
// factor, matching spec.md §4.7's "α ≈ 0.1".
func New() *Clock {
	c := &Clock{driftAlpha: 0.1}
	c.mode.Store(int32(AudioMaster))
	c.master.Store(&sample{})
	return c
}

func (c *Clock) SetMode(m Mode) { c.mode.Store(int32(m)) }
func (c *Clock) GetMode() Mode  { return Mode(c.mode.Load()) }

// NormalizeAudio returns the normalized PTS for a raw audio PTS, fixing
// the normalization origin on the first call since Open/ResetForSeek.
func (c *Clock) NormalizeAudio(rawPTS time.Duration) time.Duration {
	return c.audioOrigin.normalize(rawPTS)
}

// NormalizeVideo is the video-stream equivalent of NormalizeAudio.
func (c *Clock) NormalizeVideo(rawPTS time.Duration) time.Duration {
	return c.videoOrigin.normalize(rawPTS)
}

// UpdateAudio records a non-silent audio fill as the new clock baseline.
// This is the primary, high-frequency driver of the master clock per
// spec.md §4.7. Silence fills must never call this (spec.md §4.5).
func (c *Clock) UpdateAudio(normalizedPTS time.Duration, at time.Time) {
	c.updateDrift(normalizedPTS, at)
	if c.GetMode() == AudioMaster {
		c.setMaster(normalizedPTS, at)
	}
}

// UpdateVideo records a rendered video frame's PTS as the new clock
// baseline. Only takes effect when the clock is in VideoMaster or
// ExternalMaster mode (spec.md §4.6 step 6 / §4.7).
func (c *Clock) UpdateVideo(normalizedPTS time.Duration, at time.Time) {
	c.lastVideoNormPTS.Store(int64(normalizedPTS))
	if mode := c.GetMode(); mode == VideoMaster || mode == ExternalMaster {
		c.updateDrift(normalizedPTS, at)
		c.setMaster(normalizedPTS, at)
	}
}

func (c *Clock) setMaster(normPTS time.Duration, at time.Time) {
	c.master.Store(&sample{normPTS: normPTS, wall: at})
	c.accumulatedPause.Store(0)
}

// updateDrift computes predicted-vs-actual drift and low-pass filters it.
// The smoothed value is exposed only through Drift() for statistics; it
// is never fed back into the authoritative audio clock (spec.md §4.7).
func (c *Clock) updateDrift(normalizedPTS time.Duration, at time.Time) {
	predicted := c.MasterClock(at)
	raw := float64(normalizedPTS - predicted)
	prev := float64(c.smoothedDrift.Load())
	next := prev + c.driftAlpha*(raw-prev)
	c.smoothedDrift.Store(int64(next))
}

// Drift returns the current smoothed drift estimate, for statistics only.
func (c *Clock) Drift() time.Duration {
	return time.Duration(c.smoothedDrift.Load())
}

// MasterClock projects the master clock forward to `now`, per spec.md
// §4.7:
//
//	master_clock(now) = last_master_norm_pts +
//	    (now − last_master_wall − accumulated_pause_during_interval)
//
// While paused, the pause-duration term grows at exactly the same rate
// as the elapsed-wall term, so reads during Paused are stable (spec.md
// §8: "During Paused, the difference is zero").
func (c *Clock) MasterClock(now time.Time) time.Duration {
	s := c.master.Load()
	if s.wall.IsZero() {
		return s.normPTS
	}

	accumulatedPause := time.Duration(c.accumulatedPause.Load())
	if c.paused.Load() {
		accumulatedPause += now.Sub(time.Unix(0, c.pauseStartedAt.Load()))
	}

	delay := now.Sub(s.wall) - accumulatedPause
	if delay < 0 {
		delay = 0
	}
	return s.normPTS + delay
}

// Pause freezes the wall-clock mapping; time elapsed while paused is
// credited to accumulated_pause so Resume continues without a jump.
func (c *Clock) Pause(now time.Time) {
	if c.paused.CompareAndSwap(false, true) {
		c.pauseStartedAt.Store(now.UnixNano())
	}
}

// Resume un-freezes the clock. The PTS mapping is not adjusted; the
// accumulated pause duration absorbs the elapsed wall time so playback
// continues from the frozen position without a jump (spec.md §4.7).
func (c *Clock) Resume(now time.Time) {
	if c.paused.CompareAndSwap(true, false) {
		paused := now.Sub(time.Unix(0, c.pauseStartedAt.Load()))
		c.accumulatedPause.Add(int64(paused))
	}
}

// IsPaused reports whether the clock is currently frozen.
func (c *Clock) IsPaused() bool { return c.paused.Load() }

// ResetForSeek clears normalization origins and zeroes drift/pause state,
// seeding last_master_norm_pts with the seek target so pre-first-frame
// reads give a sensible value, per spec.md §4.7/§4.10.
func (c *Clock) ResetForSeek(target time.Duration, at time.Time) {
	c.audioOrigin.reset()
	c.videoOrigin.reset()
	c.smoothedDrift.Store(0)
	c.accumulatedPause.Store(0)
	c.paused.Store(false)
	c.lastVideoNormPTS.Store(0)
	c.master.Store(&sample{normPTS: target, wall: at})
}
