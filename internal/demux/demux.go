// Package demux wraps github.com/erparts/reisen's container/demux layer
// behind the narrower contract described in spec.md §4.1: open a URL,
// pick one active video and one active audio stream, and emit packets
// for those streams only.
//
// Stream discovery and first-stream selection are grounded on the
// teacher's newPlayer (player.go): VideoStreams()/AudioStreams(),
// warn-and-default-to-first on multiple streams. The packet pump is
// grounded on controller_no_audio.go's internalReadVideoFrame and
// controller_stream.go's decodeLoop, both of which read
// media.ReadPacket() and discriminate on packet.Type()/StreamIndex().
package demux

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/erparts/reisen"

	"github.com/avcore/player/internal/decode"
	"github.com/avcore/player/internal/errkind"
)

// Kind discriminates the two stream classes the pipeline cares about.
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
)

// Protocol classifies the URL scheme, driving the protocol-specific
// option set from spec.md §4.1.
type Protocol uint8

const (
	ProtocolFile Protocol = iota
	ProtocolHTTP
	ProtocolRTSP
	ProtocolRTMP
	ProtocolUDP
)

// Options carries the protocol-specific tuning spec.md §4.1 calls for.
// reisen.NewMedia's public surface takes only a URL/path and does not
// expose an options dictionary, so these values aren't forwarded into
// libavformat today; they're computed and logged at Open so the knobs
// exist at the right seam the moment the dependency grows one, and the
// read-timeout is enforced at this package's level instead (see
// readPacketWithTimeout).
type Options struct {
	Protocol       Protocol
	ReconnectOnEOF bool
	BufferSize     int
	MaxDelay       time.Duration
	ForceTCP       bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// OptionsForURL computes the protocol-specific option set for a URL,
// per spec.md §4.1's exact numbers.
func OptionsForURL(rawURL string) Options {
	proto := classify(rawURL)
	switch proto {
	case ProtocolHTTP:
		return Options{Protocol: proto, ReconnectOnEOF: true, BufferSize: 10 << 20, MaxDelay: 5 * time.Second, ReadTimeout: 5 * time.Second}
	case ProtocolRTSP, ProtocolRTMP:
		return Options{Protocol: proto, ForceTCP: true, BufferSize: 5 << 20, ConnectTimeout: 2 * time.Second, ReadTimeout: 2 * time.Second}
	case ProtocolUDP:
		return Options{Protocol: proto, BufferSize: 1 << 20, ReadTimeout: time.Second}
	default:
		return Options{Protocol: ProtocolFile}
	}
}

func classify(rawURL string) Protocol {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ProtocolFile
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return ProtocolHTTP
	case "rtsp":
		return ProtocolRTSP
	case "rtmp":
		return ProtocolRTMP
	case "udp":
		return ProtocolUDP
	default:
		return ProtocolFile
	}
}

// StreamInfo exposes the codec parameters of one active stream, per the
// ActiveStream(kind) part of the contract.
type StreamInfo struct {
	Kind          Kind
	Index         int
	Width, Height int           // zero for audio
	FrameRate     float64       // zero for audio
	SampleRate    int           // zero for video
	Channels      int           // zero for video
	FrameDuration time.Duration // video only
}

// Packet is one demuxed access unit tagged with the stream it belongs
// to, plus the decode-side generation it was produced under (spec.md
// §4.10 step 10: frames/packets from a stale generation are discarded).
type Packet struct {
	Kind       Kind
	Raw        *reisen.Packet
	Generation uint64
}

// EOF is returned by ReadPacket as a sentinel, never as an error
// (spec.md §7: "end-of-stream is a sentinel value, not an error").
var EOF = fmt.Errorf("demux: end of stream")

// Demuxer is the narrowed facade over reisen.Media used by the rest of
// the pipeline. It is not safe for concurrent use by more than one
// caller at a time; the pipeline's demux goroutine (ReadPacket) and its
// seek worker (Seek) both call into it, serialized by a mutex on the
// pipeline side.
type Demuxer struct {
	url     string
	opts    Options
	media   *reisen.Media
	video   *reisen.VideoStream
	audio   *reisen.AudioStream
	videoIx int
	audioIx int

	generation uint64
}

// Open probes the URL, selects the first video stream (required) and
// first audio stream (optional), and opens both for decode.
func Open(rawURL string) (*Demuxer, *errkind.Error) {
	opts := OptionsForURL(rawURL)
	pkgLogger.Printf("opening '%s' with options %+v", filepath.Base(rawURL), opts)

	if opts.Protocol != ProtocolFile {
		if err := reisen.NetworkInitialize(); err != nil {
			return nil, errkind.Wrap(errkind.NetworkError, "demux.Open", "network stack init failed", err)
		}
	}

	media, err := reisen.NewMedia(rawURL)
	if err != nil {
		if opts.Protocol != ProtocolFile {
			reisen.NetworkDeinitialize()
		}
		return nil, errkind.Wrap(errkind.IOError, "demux.Open", "failed to open media container", err)
	}

	closeOnFailure := func() {
		media.Close()
		if opts.Protocol != ProtocolFile {
			reisen.NetworkDeinitialize()
		}
	}

	videoStreams := media.VideoStreams()
	audioStreams := media.AudioStreams()
	if len(videoStreams) == 0 {
		closeOnFailure()
		return nil, errkind.ErrNoVideo
	}
	if len(videoStreams) > 1 {
		pkgLogger.Warn("'%s' has multiple video streams; defaulting to the first", filepath.Base(rawURL))
	}
	if len(audioStreams) > 1 {
		pkgLogger.Warn("'%s' has multiple audio streams; defaulting to the first", filepath.Base(rawURL))
	}

	video := videoStreams[0]
	if err := media.OpenDecode(); err != nil {
		closeOnFailure()
		return nil, errkind.Wrap(errkind.DemuxError, "demux.Open", "failed to initialize decode context", err)
	}
	if err := video.Open(); err != nil {
		media.CloseDecode()
		closeOnFailure()
		return nil, errkind.Wrap(errkind.DemuxError, "demux.Open", "failed to open video stream", err)
	}

	d := &Demuxer{
		url:     rawURL,
		opts:    opts,
		media:   media,
		video:   video,
		videoIx: video.Index(),
		audioIx: -1,
	}

	if len(audioStreams) > 0 {
		audio := audioStreams[0]
		if err := audio.Open(); err != nil {
			pkgLogger.Warn("failed to open audio stream, continuing video-only: %v", err)
		} else {
			d.audio = audio
			d.audioIx = audio.Index()
		}
	}

	return d, nil
}

// ActiveStream returns the codec parameters of the active stream of the
// given kind, or false if no such active stream exists.
func (d *Demuxer) ActiveStream(kind Kind) (StreamInfo, bool) {
	switch kind {
	case KindVideo:
		frNum, frDenom := d.video.FrameRate()
		var frameDuration time.Duration
		var fr float64
		if frNum > 0 {
			frameDuration = (time.Second * time.Duration(frDenom)) / time.Duration(frNum)
			fr = float64(frNum) / float64(frDenom)
		}
		return StreamInfo{
			Kind: KindVideo, Index: d.videoIx,
			Width: d.video.Width(), Height: d.video.Height(),
			FrameRate: fr, FrameDuration: frameDuration,
		}, true
	case KindAudio:
		if d.audio == nil {
			return StreamInfo{}, false
		}
		return StreamInfo{
			Kind: KindAudio, Index: d.audioIx,
			SampleRate: d.audio.SampleRate(), Channels: d.audio.ChannelCount(),
		}, true
	default:
		return StreamInfo{}, false
	}
}

// Duration returns the container duration in milliseconds, 0 for live
// sources without a known duration.
func (d *Demuxer) Duration() int64 {
	dur, err := d.video.Duration()
	if err != nil {
		return 0
	}
	return dur.Milliseconds()
}

// HasAudio reports whether an active audio stream was selected.
func (d *Demuxer) HasAudio() bool { return d.audio != nil }

// NewVideoDecoder builds a decoder bound to this Demuxer's active video
// stream. The stream is already open (Open did that); this just wires
// up decode-side bookkeeping.
func (d *Demuxer) NewVideoDecoder() *decode.VideoDecoder {
	return decode.NewVideoDecoder(d.video)
}

// NewAudioDecoder builds a decoder bound to this Demuxer's active audio
// stream, returning ok=false when no audio stream was selected.
func (d *Demuxer) NewAudioDecoder() (*decode.AudioDecoder, bool) {
	if d.audio == nil {
		return nil, false
	}
	return decode.NewAudioDecoder(d.audio), true
}

// ReadPacket reads the next packet belonging to an active stream,
// skipping packets for every other stream transparently. Returns
// (Packet{}, demux.EOF) at end of stream, never an error for that case.
func (d *Demuxer) ReadPacket(ctx context.Context) (Packet, error) {
	for {
		if ctx.Err() != nil {
			return Packet{}, ctx.Err()
		}

		packet, ok, err := d.readPacketWithTimeout(ctx)
		if err != nil {
			return Packet{}, errkind.Wrap(errkind.DemuxError, "demux.ReadPacket", "read failed", err)
		}
		if !ok {
			return Packet{}, EOF
		}

		switch {
		case packet.Type() == reisen.StreamVideo && packet.StreamIndex() == d.videoIx:
			return Packet{Kind: KindVideo, Raw: packet, Generation: d.generation}, nil
		case d.audio != nil && packet.Type() == reisen.StreamAudio && packet.StreamIndex() == d.audioIx:
			return Packet{Kind: KindAudio, Raw: packet, Generation: d.generation}, nil
		default:
			// packet for an inactive stream: skip silently
			continue
		}
	}
}

// readPacketWithTimeout enforces opts.ReadTimeout on network sources,
// since reisen.Media.ReadPacket itself takes no deadline argument. The
// underlying read keeps running if it times out (reisen exposes no
// cancellation primitive) and its result is discarded. A timeout is not
// retried: ReadPacket returns it as a DemuxError like any other read
// failure, and the pipeline's demux task treats that as fatal.
func (d *Demuxer) readPacketWithTimeout(ctx context.Context) (*reisen.Packet, bool, error) {
	if d.opts.ReadTimeout <= 0 {
		return d.media.ReadPacket()
	}

	type result struct {
		packet *reisen.Packet
		ok     bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		p, ok, err := d.media.ReadPacket()
		done <- result{p, ok, err}
	}()

	select {
	case r := <-done:
		return r.packet, r.ok, r.err
	case <-time.After(d.opts.ReadTimeout):
		return nil, false, fmt.Errorf("read timed out after %s", d.opts.ReadTimeout)
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Seek repositions the container to the keyframe at or before ts
// (keyframe-accurate, not sample-accurate). The backward flag is
// accepted but not used, since reisen's Rewind always seeks backward.
// It bumps the generation counter so in-flight packets/frames from
// before the seek can be recognized and discarded downstream.
func (d *Demuxer) Seek(ts time.Duration, backward bool) *errkind.Error {
	_ = backward // reisen's Rewind always seeks to the keyframe at-or-before ts
	if err := d.video.Rewind(ts); err != nil {
		return errkind.Wrap(errkind.DemuxError, "demux.Seek", "video stream rewind failed", err)
	}
	if d.audio != nil {
		if err := d.audio.Rewind(ts); err != nil {
			return errkind.Wrap(errkind.DemuxError, "demux.Seek", "audio stream rewind failed", err)
		}
	}
	d.generation++
	return nil
}

// Generation returns the current seek generation, incremented on every
// successful Seek (spec.md §4.10 step 10).
func (d *Demuxer) Generation() uint64 { return d.generation }

// Close releases the underlying decode context and container handle, and
// tears down reisen's network stack for protocol sources that
// initialized it (spec.md §4.1: network URLs only).
func (d *Demuxer) Close() error {
	if d.audio != nil {
		d.audio.Close()
	}
	if d.video != nil {
		d.video.Close()
	}
	if d.opts.Protocol != ProtocolFile {
		defer reisen.NetworkDeinitialize()
	}
	if err := d.media.CloseDecode(); err != nil {
		return err
	}
	return d.media.Close()
}
