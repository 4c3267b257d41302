// Package resample converts decoded PCM into the audio output's target
// format, per spec.md §4.4.
//
// No rate-conversion or channel-mixing library appears anywhere in the
// retrieved example pack (grepping the whole corpus for resample/swresample/
// soxr turns up nothing); the teacher package sidesteps the problem
// entirely by requiring the source sample rate to equal the audio
// context's rate up front (player.go's ErrBadSampleRate). This package
// is therefore hand-rolled against the standard library, justified in
// DESIGN.md: linear interpolation for rate conversion and a direct
// channel up/down-mix, both well-understood textbook algorithms with no
// natural third-party home in this corpus.
//
// All PCM in this package is 16-bit signed little-endian, interleaved —
// the format reisen decodes to and the format ebiten/v2/audio expects,
// per spec.md §6's default audio device spec.
package resample

import (
	"encoding/binary"
	"time"
)

// Format describes one axis set of an interleaved S16LE PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Equal reports whether two formats match on every axis (the fast-path
// condition of spec.md §4.4).
func (f Format) Equal(other Format) bool {
	return f.SampleRate == other.SampleRate && f.Channels == other.Channels
}

// OutSamplesUpperBound bounds the number of interleaved sample frames a
// Resample call can produce for inSamples frames of source audio,
// matching spec.md §4.4's "out_samples_upper_bound(in_samples)" sizing
// call. Rate-up conversions can expand sample count; add two frames of
// slack for interpolation rounding.
func OutSamplesUpperBound(inSamples, srcRate, dstRate int) int {
	if srcRate <= 0 || srcRate == dstRate {
		return inSamples
	}
	return inSamples*dstRate/srcRate + 2
}

// Resampler converts frames of Src format into Dst format PCM. Zero
// value is not usable; construct with New.
type Resampler struct {
	src, dst Format
	fastPath bool
	scratch  []byte // reusable conversion buffer
}

// New selects the conversion path once, from the src and dst formats
// given here; it does not inspect the first decoded frame. When
// src == dst, Resample takes the zero-copy fast path.
func New(src, dst Format) *Resampler {
	return &Resampler{src: src, dst: dst, fastPath: src.Equal(dst)}
}

// ResampledAudioFrame is the Resampler's output, carrying the
// presentation timestamp derived from the source frame's ts (spec.md
// §4.4: "out carries pts_ms derived from ts").
type ResampledAudioFrame struct {
	PCM   []byte
	PTSMs int64
}

// Resample converts one decoded PCM frame. The returned frame's PCM
// slice aliases the Resampler's internal scratch buffer whenever the
// sample rate is converted, and the caller-provided frame on the fast
// path (a channel-only conversion returns a freshly allocated slice);
// callers that need to retain it across the next Resample call must
// copy it (the audio player queue does this once, on enqueue).
func (r *Resampler) Resample(pcm []byte, ts time.Duration) ResampledAudioFrame {
	out := ResampledAudioFrame{PTSMs: ts.Milliseconds()}
	if r.fastPath {
		out.PCM = pcm
		return out
	}

	converted := r.convertChannels(pcm)
	converted = r.convertRate(converted)
	out.PCM = converted
	return out
}

// Reset drops the converter's transient state but keeps its configured
// src/dst formats, per spec.md §4.4 ("used on seek").
func (r *Resampler) Reset() {
	r.scratch = r.scratch[:0]
}

const bytesPerSample = 2 // S16LE

// convertChannels up/down-mixes interleaved S16LE frames between
// r.src.Channels and r.dst.Channels. Mono->stereo duplicates the
// sample; stereo->mono averages the pair; any other channel counts are
// passed through unchanged (the pipeline rejects >2 channel sources
// upstream, per spec.md's audio device contract).
func (r *Resampler) convertChannels(pcm []byte) []byte {
	if r.src.Channels == r.dst.Channels {
		return pcm
	}

	frameCount := len(pcm) / (bytesPerSample * r.src.Channels)
	out := make([]byte, 0, frameCount*bytesPerSample*r.dst.Channels)

	switch {
	case r.src.Channels == 1 && r.dst.Channels == 2:
		for i := 0; i < frameCount; i++ {
			sample := pcm[i*bytesPerSample : i*bytesPerSample+bytesPerSample]
			out = append(out, sample...)
			out = append(out, sample...)
		}
	case r.src.Channels == 2 && r.dst.Channels == 1:
		for i := 0; i < frameCount; i++ {
			l := int16(binary.LittleEndian.Uint16(pcm[i*4 : i*4+2]))
			rr := int16(binary.LittleEndian.Uint16(pcm[i*4+2 : i*4+4]))
			avg := int16((int32(l) + int32(rr)) / 2)
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(avg))
			out = append(out, buf[:]...)
		}
	default:
		return pcm
	}
	return out
}

// convertRate linearly interpolates interleaved S16LE frames from
// r.src.SampleRate to r.dst.SampleRate. Linear interpolation is not
// bandlimited (it introduces some aliasing versus a sinc-based
// resampler), but it is bit-simple, allocation-bounded, and adequate
// for the modest rate mismatches (e.g. 48 kHz -> 44.1 kHz) this player
// is expected to encounter.
func (r *Resampler) convertRate(pcm []byte) []byte {
	if r.src.SampleRate == r.dst.SampleRate || r.src.SampleRate == 0 {
		return pcm
	}

	channels := r.dst.Channels
	frameSize := bytesPerSample * channels
	srcFrames := len(pcm) / frameSize
	if srcFrames == 0 {
		return pcm
	}

	dstFrames := srcFrames * r.dst.SampleRate / r.src.SampleRate
	need := dstFrames * frameSize
	if cap(r.scratch) < need {
		r.scratch = make([]byte, need)
	}
	out := r.scratch[:need]

	ratio := float64(r.src.SampleRate) / float64(r.dst.SampleRate)
	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		i1 := i0 + 1
		if i1 >= srcFrames {
			i1 = srcFrames - 1
		}
		frac := srcPos - float64(i0)

		for c := 0; c < channels; c++ {
			s0 := int16(binary.LittleEndian.Uint16(pcm[i0*frameSize+c*2 : i0*frameSize+c*2+2]))
			s1 := int16(binary.LittleEndian.Uint16(pcm[i1*frameSize+c*2 : i1*frameSize+c*2+2]))
			interp := float64(s0) + (float64(s1)-float64(s0))*frac
			binary.LittleEndian.PutUint16(out[i*frameSize+c*2:i*frameSize+c*2+2], uint16(int16(interp)))
		}
	}
	return out
}
