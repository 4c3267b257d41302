package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFirstFrameIsZero(t *testing.T) {
	c := New()
	first := c.NormalizeAudio(12345 * time.Millisecond)
	assert.Equal(t, time.Duration(0), first)

	second := c.NormalizeAudio(12395 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, second)
}

func TestMasterClockMonotonicWhilePlaying(t *testing.T) {
	c := New()
	base := time.Now()
	c.UpdateAudio(0, base)

	t1 := c.MasterClock(base.Add(100 * time.Millisecond))
	t2 := c.MasterClock(base.Add(250 * time.Millisecond))
	assert.GreaterOrEqual(t, t2, t1)
	assert.InDelta(t, 150*time.Millisecond, t2-t1, float64(2*time.Millisecond))
}

func TestPauseFreezesClock(t *testing.T) {
	c := New()
	base := time.Now()
	c.UpdateAudio(500*time.Millisecond, base)

	before := c.MasterClock(base.Add(10 * time.Millisecond))
	c.Pause(base.Add(10 * time.Millisecond))

	// Reading at various points during the pause must return the same
	// value, regardless of how long the pause lasts.
	duringPause := c.MasterClock(base.Add(10 * time.Second))
	assert.InDelta(t, float64(before), float64(duringPause), float64(time.Millisecond))

	c.Resume(base.Add(10 * time.Second))
	afterResume := c.MasterClock(base.Add(10*time.Second + 20*time.Millisecond))
	assert.InDelta(t, float64(before+20*time.Millisecond), float64(afterResume), float64(2*time.Millisecond))
}

func TestResetForSeekThenFirstAudioUpdateIsZero(t *testing.T) {
	c := New()
	base := time.Now()
	c.UpdateAudio(10*time.Second, base)

	target := 30 * time.Second
	c.ResetForSeek(target, base.Add(time.Second))
	require.Equal(t, target, c.MasterClock(base.Add(time.Second)))

	// First audio update after the seek re-normalizes to 0, and the
	// update replaces the seeded target with that normalized PTS, so the
	// master clock read at the update's own wall time is exactly 0.
	rawAfterSeek := 30*time.Second + 16*time.Millisecond
	norm := c.NormalizeAudio(rawAfterSeek)
	assert.Equal(t, time.Duration(0), norm)

	at := base.Add(time.Second + 5*time.Millisecond)
	c.UpdateAudio(norm, at)
	assert.Equal(t, time.Duration(0), c.MasterClock(at))
}

func TestVideoUpdateIgnoredUnlessVideoMaster(t *testing.T) {
	c := New()
	base := time.Now()
	c.UpdateAudio(0, base)
	c.UpdateVideo(5*time.Second, base)
	// still audio-master: video update must not move the master clock
	assert.Less(t, c.MasterClock(base), 4*time.Second)

	c.SetMode(VideoMaster)
	c.UpdateVideo(5*time.Second, base)
	assert.Equal(t, 5*time.Second, c.MasterClock(base))
}
