package seek

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcore/player/internal/errkind"
	"github.com/avcore/player/internal/state"
)

// fakeCoordinator records every step invocation in order, so tests can
// assert both the sequence and the arguments threaded through it.
type fakeCoordinator struct {
	mu    sync.Mutex
	calls []string

	seekErr  *errkind.Error
	restored chan state.State
	done     chan struct{}
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{restored: make(chan state.State, 8), done: make(chan struct{}, 8)}
}

func (f *fakeCoordinator) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeCoordinator) EnterSeeking() state.State { f.record("EnterSeeking"); return state.Playing }
func (f *fakeCoordinator) PauseAVPlayers()           { f.record("PauseAVPlayers") }
func (f *fakeCoordinator) FlushAudioDevice()         { f.record("FlushAudioDevice") }
func (f *fakeCoordinator) ClearSoftwareQueues()      { f.record("ClearSoftwareQueues") }
func (f *fakeCoordinator) FlushDecoders()            { f.record("FlushDecoders") }
func (f *fakeCoordinator) ClearRendererCaches()      { f.record("ClearRendererCaches") }
func (f *fakeCoordinator) ResetClock(targetMs int64) { f.record("ResetClock") }
func (f *fakeCoordinator) ResetPTSTracking()         { f.record("ResetPTSTracking") }

func (f *fakeCoordinator) SeekDemuxer(targetMs int64, backward bool) *errkind.Error {
	f.record("SeekDemuxer")
	return f.seekErr
}

func (f *fakeCoordinator) BumpGeneration() uint64 {
	f.record("BumpGeneration")
	return 1
}

func (f *fakeCoordinator) Restore(previous state.State) {
	f.record("Restore")
	f.restored <- previous
	f.done <- struct{}{}
}

func (f *fakeCoordinator) Fail(err *errkind.Error) {
	f.record("Fail")
	f.done <- struct{}{}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	coord := newFakeCoordinator()
	w := NewWorker(coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit(NewRequest(5000, true))

	select {
	case previous := <-coord.restored:
		assert.Equal(t, state.Playing, previous)
	case <-time.After(time.Second):
		t.Fatal("seek did not complete in time")
	}

	coord.mu.Lock()
	defer coord.mu.Unlock()
	want := []string{
		"EnterSeeking", "PauseAVPlayers", "FlushAudioDevice", "ClearSoftwareQueues",
		"FlushDecoders", "ClearRendererCaches", "ResetClock", "ResetPTSTracking",
		"SeekDemuxer", "BumpGeneration", "Restore",
	}
	assert.Equal(t, want, coord.calls)
}

func TestExecuteStopsAtSeekDemuxerFailure(t *testing.T) {
	coord := newFakeCoordinator()
	coord.seekErr = errkind.New(errkind.DemuxError, "demux.Seek", "rewind failed")
	w := NewWorker(coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit(NewRequest(1000, true))

	select {
	case <-coord.done:
	case <-time.After(time.Second):
		t.Fatal("seek did not complete in time")
	}

	coord.mu.Lock()
	defer coord.mu.Unlock()
	assert.NotContains(t, coord.calls, "BumpGeneration")
	assert.NotContains(t, coord.calls, "Restore")
	assert.Contains(t, coord.calls, "Fail")
}

func TestSubmitSupersedesNotYetStartedRequest(t *testing.T) {
	w := NewWorker(newFakeCoordinator())
	first := NewRequest(1000, true)
	second := NewRequest(2000, true)

	assert.False(t, w.Submit(first), "first submit on an idle worker supersedes nothing")
	assert.True(t, w.Submit(second), "second submit supersedes the first, which hadn't started yet")

	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotNil(t, w.pending)
	assert.Equal(t, second.ID, w.pending.ID)
}

func TestStopEndsRunLoop(t *testing.T) {
	w := NewWorker(newFakeCoordinator())
	finished := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(finished)
	}()

	w.Stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestContextCancellationStopsWorker(t *testing.T) {
	w := NewWorker(newFakeCoordinator())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()

	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
