package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avcore/player/internal/errkind"
)

func TestNewStartsIdle(t *testing.T) {
	m := New()
	assert.Equal(t, Idle, m.Current())
}

func TestTransitionFiresObserversInOrder(t *testing.T) {
	m := New()
	var seen []State
	m.Observe(func(old, next State) { seen = append(seen, old, next) })

	m.Transition(Opening)
	m.Transition(Buffering)

	assert.Equal(t, []State{Idle, Opening, Opening, Buffering}, seen)
}

func TestTransitionToSameStateIsANoOpForObservers(t *testing.T) {
	m := New()
	m.Transition(Playing)

	calls := 0
	m.Observe(func(old, next State) { calls++ })
	m.Transition(Playing)

	assert.Equal(t, 0, calls)
}

func TestFailRecordsLastErrorAndTransitionsToError(t *testing.T) {
	m := New()
	err := errkind.New(errkind.DecoderError, "test.Fail", "boom")
	m.Fail(err)

	assert.Equal(t, Error, m.Current())
	assert.Equal(t, err, m.LastError())
}

func TestAcknowledgeClearsErrorAndResetsToIdle(t *testing.T) {
	m := New()
	m.Fail(errkind.New(errkind.DecoderError, "test.Fail", "boom"))

	m.Acknowledge()

	assert.Equal(t, Idle, m.Current())
	assert.Nil(t, m.LastError())
}

func TestStringNamesEveryState(t *testing.T) {
	cases := map[State]string{
		Idle: "idle", Opening: "opening", Buffering: "buffering", Playing: "playing",
		Paused: "paused", Seeking: "seeking", Stopped: "stopped", Error: "error",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
	assert.Equal(t, "unknown(99)", State(99).String())
}
