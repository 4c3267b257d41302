// Package decode implements the push/pull decoder contract of spec.md
// §4.2 on top of github.com/erparts/reisen's stream decoders.
//
// reisen couples "feed a packet" and "decode it" into one call
// (VideoStream.ReadVideoFrame / AudioStream.ReadAudioFrame, both
// grounded on controller_no_audio.go's internalReadVideoFrame and
// controller_yes_audio.go's internalReadAudioFrame), so SendPacket
// performs the decode eagerly and stashes whatever frame it produced;
// ReceivePendingFrames just drains that one-entry backlog. The
// push/pull shape is kept because the rest of the pipeline (and a
// future decoder backend with a real multi-frame-per-packet reorder
// buffer) is written against it, not because reisen needs it split
// this way today.
//
// Hardware attachment (spec.md §4.2's "Open(codec_params, optional
// hw_ctx)") is modeled by VideoDecoder.Open/checkHardwareFormat:
// reisen's public API exposes no hw_device_ctx / format-selection-
// callback hook, so every decoded frame is system memory, but the
// acquire/validate-first-frame/reopen-in-software contract still runs
// against internal/hwaccel's Context. See that package for the
// fallback-policy justification.
package decode

import (
	"time"

	"github.com/erparts/reisen"

	"github.com/avcore/player/internal/errkind"
	"github.com/avcore/player/internal/hwaccel"
	"github.com/avcore/player/internal/log"
)

// maxConsecutiveFailures is spec.md §7's "repeated consecutive failures
// (>N, typically 5) escalate to stream failure".
const maxConsecutiveFailures = 5

var pkgLogger = log.For("decode")

// failureTracker is shared bookkeeping for the video/audio decoders: it
// counts consecutive per-frame failures and reports when the stream
// should be considered dead rather than skip-and-continue.
type failureTracker struct {
	consecutive int
}

// recordFailure returns true once the stream has failed too many times
// in a row to keep skipping (spec.md §7).
func (f *failureTracker) recordFailure() bool {
	f.consecutive++
	return f.consecutive > maxConsecutiveFailures
}

func (f *failureTracker) recordSuccess() { f.consecutive = 0 }

// VideoFrame pairs a decoded frame with the demux generation it was
// produced under, so stale frames from before a seek can be discarded
// (spec.md §4.10 step 10).
type VideoFrame struct {
	Frame      *reisen.VideoFrame
	Generation uint64
}

// VideoDecoder decodes packets for one active video stream.
type VideoDecoder struct {
	stream  *reisen.VideoStream
	pending []VideoFrame
	failureTracker

	hwCtx     *hwaccel.Context
	hwChecked bool
}

// NewVideoDecoder wraps an already-open video stream. Opening itself
// happens in the demux layer (reisen ties stream-open to container
// probing), so this constructor only sets up decode-side bookkeeping.
func NewVideoDecoder(stream *reisen.VideoStream) *VideoDecoder {
	return &VideoDecoder{stream: stream}
}

// Open attaches hwCtx (spec.md §4.2's "Open(codec_params, optional
// hw_ctx)"): a nil hwCtx means software-only decode, exactly as before.
// A non-nil one is acquired here and released by Close; the first
// decoded frame is checked against it by checkHardwareFormat.
func (d *VideoDecoder) Open(hwCtx *hwaccel.Context) *errkind.Error {
	if hwCtx != nil {
		hwCtx.Acquire()
	}
	d.hwCtx = hwCtx
	return nil
}

// Close releases the hardware context acquired by Open, if any.
func (d *VideoDecoder) Close() {
	if d.hwCtx != nil {
		d.hwCtx.Release()
		d.hwCtx = nil
	}
}

// checkHardwareFormat implements spec.md §4.2's first-frame pixel-format
// validation: once, after the first frame is decoded, confirm the
// active hardware context's backend actually matches what came out of
// the decoder, falling back to software (reopening in software mode)
// on any mismatch. reisen never produces anything but system-memory
// frames, so any backend other than BackendNone is by definition a
// mismatch here; this still runs the real validate-and-reopen policy
// rather than skipping it, so a future backend only has to start
// reporting itself correctly through hwaccel.Context.Backend.
func (d *VideoDecoder) checkHardwareFormat() {
	if d.hwChecked {
		return
	}
	d.hwChecked = true
	if d.hwCtx == nil || d.hwCtx.Backend() == hwaccel.BackendNone {
		return
	}
	pkgLogger.Warn("hardware pixel format mismatch for backend %s, reopening in software mode", d.hwCtx.Backend())
	d.hwCtx.Release()
	d.hwCtx = nil
}

// SendPacket decodes the packet's payload (already selected for this
// stream by the demuxer) and stashes the resulting frame, if any, for
// ReceivePendingFrames. A nil frame with no error is a valid "packet
// produced no displayable frame yet" outcome, not a failure.
func (d *VideoDecoder) SendPacket(generation uint64) *errkind.Error {
	frame, _, err := d.stream.ReadVideoFrame()
	if err != nil {
		if d.recordFailure() {
			pkgLogger.Error("video stream failing, too many consecutive decode errors: %v", err)
			return errkind.Wrap(errkind.DecoderError, "decode.Video.SendPacket", "too many consecutive decode failures", err)
		}
		pkgLogger.Warn("video decode error, skipping frame: %v", err)
		return nil
	}
	d.recordSuccess()
	if frame != nil {
		d.checkHardwareFormat()
		d.pending = append(d.pending, VideoFrame{Frame: frame, Generation: generation})
	}
	return nil
}

// ReceivePendingFrames drains frames produced by prior SendPacket calls.
// ok is false once the backlog is empty ("need more input").
func (d *VideoDecoder) ReceivePendingFrames() (VideoFrame, bool) {
	if len(d.pending) == 0 {
		return VideoFrame{}, false
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, true
}

// Flush resets decode-side state (pending frames, failure counter). It
// does not touch the stream's own seek position; that's the demuxer's
// job (spec.md §4.10 step 5 vs step 9).
func (d *VideoDecoder) Flush() {
	d.pending = d.pending[:0]
	d.failureTracker = failureTracker{}
}

// AudioFrame pairs decoded PCM with its presentation offset and the
// demux generation it was produced under.
type AudioFrame struct {
	Data       []byte
	PTS        time.Duration
	Generation uint64
}

// AudioDecoder decodes packets for one active audio stream.
type AudioDecoder struct {
	stream  *reisen.AudioStream
	pending []AudioFrame
	failureTracker
}

func NewAudioDecoder(stream *reisen.AudioStream) *AudioDecoder {
	return &AudioDecoder{stream: stream}
}

func (d *AudioDecoder) SendPacket(generation uint64) *errkind.Error {
	frame, _, err := d.stream.ReadAudioFrame()
	if err != nil {
		if d.recordFailure() {
			pkgLogger.Error("audio stream failing, too many consecutive decode errors: %v", err)
			return errkind.Wrap(errkind.DecoderError, "decode.Audio.SendPacket", "too many consecutive decode failures", err)
		}
		pkgLogger.Warn("audio decode error, skipping frame: %v", err)
		return nil
	}
	d.recordSuccess()
	if frame != nil {
		pts, err := frame.PresentationOffset()
		if err != nil {
			pkgLogger.Warn("audio frame missing presentation offset, skipping: %v", err)
			return nil
		}
		d.pending = append(d.pending, AudioFrame{Data: frame.Data(), PTS: pts, Generation: generation})
	}
	return nil
}

func (d *AudioDecoder) ReceivePendingFrames() (AudioFrame, bool) {
	if len(d.pending) == 0 {
		return AudioFrame{}, false
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, true
}

func (d *AudioDecoder) Flush() {
	d.pending = d.pending[:0]
	d.failureTracker = failureTracker{}
}
