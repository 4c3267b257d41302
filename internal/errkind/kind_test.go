package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	a := New(DemuxError, "demux.Open", "boom")
	b := New(DemuxError, "demux.ReadPacket", "different message, same kind")
	c := New(IOError, "demux.Open", "boom")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrapUnwrapsToCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(IOError, "demux.Open", "failed to open media container", cause)

	assert.Same(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "underlying")
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := New(StreamNotFound, "demux.Open", "no video stream found")
	assert.Equal(t, "demux.Open: no video stream found", err.Error())
}

func TestKindStringFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(255).String())
	assert.Equal(t, "DemuxError", DemuxError.String())
}
