package player

import (
	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/avcore/player/internal/errkind"
)

// ErrNoAudio is returned by ProbeAudioSampleRate when url has no audio
// stream to size a device context for.
var ErrNoAudio = errkind.New(errkind.StreamNotFound, "player.ProbeAudioSampleRate", "media contains no audio stream")

// ErrAudioContextExists is returned by NewAudioContextForURL when an
// ebiten/v2/audio.Context already exists; Ebitengine allows only one
// per process.
var ErrAudioContextExists = errkind.New(errkind.AlreadyRunning, "player.NewAudioContextForURL", "an audio.Context already exists for this process")

// NewAudioContextForURL creates an ebiten/v2/audio.Context sized to
// match url's audio stream sample rate, so the resampler downstream of
// Open has a fixed device rate to target instead of guessing. Call this
// once per process, before Open.
func NewAudioContextForURL(url string) (*audio.Context, *errkind.Error) {
	if audio.CurrentContext() != nil {
		return nil, ErrAudioContextExists
	}
	sampleRate, err := ProbeAudioSampleRate(url)
	if err != nil {
		return nil, err
	}
	return audio.NewContext(sampleRate), nil
}

// ProbeAudioSampleRate opens url just long enough to read its first
// audio stream's sample rate, without decoding anything. Returns
// ErrNoAudio if url has no audio stream.
func ProbeAudioSampleRate(url string) (int, *errkind.Error) {
	media, err := reisen.NewMedia(url)
	if err != nil {
		return 0, errkind.Wrap(errkind.IOError, "player.ProbeAudioSampleRate", "failed to open media container", err)
	}
	defer media.Close()

	audioStreams := media.AudioStreams()
	if len(audioStreams) == 0 {
		return 0, ErrNoAudio
	}
	return audioStreams[0].SampleRate(), nil
}
