// Package seek implements the 11-step random-access seek protocol of
// spec.md §4.10 as a small state machine on a dedicated worker
// goroutine, never on the caller's thread.
//
// The "latest request wins, older ones are superseded" behavior and the
// unlock-before-wait pattern are grounded on controller_stream.go's
// noLockStop, which releases its mutex before a potentially blocking
// wg.Wait() to avoid self-deadlock; here the worker releases its mutex
// before executing a (potentially slow) seek so a newer Submit is never
// blocked behind it.
package seek

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/avcore/player/internal/errkind"
	"github.com/avcore/player/internal/log"
	"github.com/avcore/player/internal/state"
)

var pkgLogger = log.For("seek")

// Request is one pending random-access seek (spec.md §3's SeekRequest
// entity). ID exists purely for log correlation across the steps of
// one seek, per SPEC_FULL.md's domain-stack wiring of google/uuid.
type Request struct {
	ID       uuid.UUID
	TargetMs int64
	Backward bool
}

// NewRequest stamps a fresh correlation ID onto a target/backward pair.
func NewRequest(targetMs int64, backward bool) Request {
	return Request{ID: uuid.New(), TargetMs: targetMs, Backward: backward}
}

// Coordinator is implemented by the playback controller; each method
// corresponds to one numbered step of spec.md §4.10's algorithm. The
// worker only sequences these calls — it owns no pipeline state itself.
type Coordinator interface {
	// EnterSeeking is step 1: transition to Seeking, return the state to
	// restore afterward.
	EnterSeeking() state.State
	PauseAVPlayers()                                       // step 2
	FlushAudioDevice()                                      // step 3
	ClearSoftwareQueues()                                   // step 4
	FlushDecoders()                                         // step 5
	ClearRendererCaches()                                   // step 6
	ResetClock(targetMs int64)                              // step 7
	ResetPTSTracking()                                      // step 8
	SeekDemuxer(targetMs int64, backward bool) *errkind.Error // step 9
	BumpGeneration() uint64                                 // step 10
	Restore(previous state.State)                           // step 11
	Fail(err *errkind.Error)
}

// Worker drains pending seek requests, always executing the newest one
// (spec.md §4.10: "the worker must drain up to the newest target").
type Worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *Request
	stopped bool
	coord   Coordinator
}

func NewWorker(coord Coordinator) *Worker {
	w := &Worker{coord: coord}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Submit posts a new seek request, superseding any not-yet-started
// request already pending. The return reports whether it superseded one
// (the superseded request never ran at all, not even partially).
func (w *Worker) Submit(req Request) bool {
	w.mu.Lock()
	superseded := w.pending != nil
	if superseded {
		pkgLogger.Printf("seek %s superseded by %s before it started", w.pending.ID, req.ID)
	}
	w.pending = &req
	w.mu.Unlock()
	w.cond.Signal()
	return superseded
}

// Run processes requests until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	stopOnCtxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-stopOnCtxDone:
		}
	}()
	defer close(stopOnCtxDone)

	for {
		w.mu.Lock()
		for w.pending == nil && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		req := *w.pending
		w.pending = nil
		w.mu.Unlock()

		w.execute(req)
	}
}

// Stop wakes the worker and terminates its loop once any in-flight
// request completes.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *Worker) execute(req Request) {
	pkgLogger.Printf("seek %s: starting, target=%dms", req.ID, req.TargetMs)

	previous := w.coord.EnterSeeking()
	w.coord.PauseAVPlayers()
	w.coord.FlushAudioDevice()
	w.coord.ClearSoftwareQueues()
	w.coord.FlushDecoders()
	w.coord.ClearRendererCaches()
	w.coord.ResetClock(req.TargetMs)
	w.coord.ResetPTSTracking()

	if err := w.coord.SeekDemuxer(req.TargetMs, req.Backward); err != nil {
		pkgLogger.Error("seek %s: demuxer seek failed: %v", req.ID, err)
		w.coord.Fail(err)
		return
	}

	generation := w.coord.BumpGeneration()
	w.coord.Restore(previous)
	pkgLogger.Printf("seek %s: complete, generation=%d", req.ID, generation)
}
