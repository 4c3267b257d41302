package resample

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16le(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestResampleFastPathAliasesInput(t *testing.T) {
	format := Format{SampleRate: 44100, Channels: 2}
	r := New(format, format)

	pcm := s16le(100, -100)
	out := r.Resample(pcm, 250*time.Millisecond)

	assert.Equal(t, int64(250), out.PTSMs)
	require.Len(t, out.PCM, len(pcm))
	assert.Same(t, &pcm[0], &out.PCM[0])
}

func TestResampleMonoToStereoDuplicatesSample(t *testing.T) {
	r := New(Format{SampleRate: 44100, Channels: 1}, Format{SampleRate: 44100, Channels: 2})
	out := r.Resample(s16le(1000), 0)
	assert.Equal(t, s16le(1000, 1000), out.PCM)
}

func TestResampleStereoToMonoAveragesChannels(t *testing.T) {
	r := New(Format{SampleRate: 44100, Channels: 2}, Format{SampleRate: 44100, Channels: 1})
	out := r.Resample(s16le(100, 300), 0)
	assert.Equal(t, s16le(200), out.PCM)
}

func TestResampleRateConversionPreservesEndpointSample(t *testing.T) {
	r := New(Format{SampleRate: 48000, Channels: 1}, Format{SampleRate: 24000, Channels: 1})
	pcm := s16le(0, 1000, 2000, 3000)
	out := r.Resample(pcm, 0)

	require.Len(t, out.PCM, 4)
	first := int16(binary.LittleEndian.Uint16(out.PCM[0:2]))
	assert.Equal(t, int16(0), first)
}

func TestOutSamplesUpperBoundPassesThroughWhenRatesMatch(t *testing.T) {
	assert.Equal(t, 512, OutSamplesUpperBound(512, 44100, 44100))
}

func TestOutSamplesUpperBoundScalesWithRateRatio(t *testing.T) {
	got := OutSamplesUpperBound(1000, 44100, 48000)
	assert.Greater(t, got, 1000)
}

func TestResetClearsScratchWithoutChangingFormats(t *testing.T) {
	r := New(Format{SampleRate: 48000, Channels: 1}, Format{SampleRate: 24000, Channels: 1})
	_ = r.Resample(s16le(0, 1000, 2000, 3000), 0)
	require.NotEmpty(t, r.scratch)

	r.Reset()
	assert.Empty(t, r.scratch)

	out := r.Resample(s16le(0, 1000, 2000, 3000), 0)
	assert.Len(t, out.PCM, 4)
}

func TestFormatEqual(t *testing.T) {
	a := Format{SampleRate: 44100, Channels: 2}
	b := Format{SampleRate: 44100, Channels: 2}
	c := Format{SampleRate: 48000, Channels: 2}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
