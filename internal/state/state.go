// Package state implements the player lifecycle FSM of spec.md §3/§4.9:
// Idle, Opening, Buffering, Playing, Paused, Seeking, Stopped, Error,
// with synchronous observer callbacks on every transition.
//
// The state enum and String() table follow the naming convention of
// the torrent-engine streaming FSM in the example pack (StreamState /
// streamStateNames): a flat iota enum plus a parallel name slice,
// rather than a stringer-generated type. Callback dispatch is new
// (the teacher's own PlaybackState is a plain value with no observers),
// grounded on spec.md §5's explicit requirement that "callbacks are
// invoked with the lock released to prevent re-entrant deadlock".
package state

import (
	"fmt"
	"sync"

	"github.com/avcore/player/internal/errkind"
)

type State int

const (
	Idle State = iota
	Opening
	Buffering
	Playing
	Paused
	Seeking
	Stopped
	Error
)

var names = [...]string{
	"idle", "opening", "buffering", "playing",
	"paused", "seeking", "stopped", "error",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Observer is invoked on every transition. Per spec.md §6: "observers
// pay for their own thread marshaling" — Manager calls observers
// synchronously on whichever goroutine triggered the transition.
type Observer func(old, new State)

// Manager is the single per-player FSM instance (spec.md §3: "Single
// instance per player; transitions observed by UI and internal tasks").
type Manager struct {
	mu        sync.Mutex
	current   State
	observers []Observer

	lastError *errkind.Error
}

func New() *Manager {
	return &Manager{current: Idle}
}

func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Observe registers an observer invoked synchronously on every future
// transition, in registration order.
func (m *Manager) Observe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Transition moves the FSM to next, recording the previous state as
// "the previous state" consumers of spec.md §4.10 step 1 expect to be
// able to restore, and fires every observer with the lock released.
func (m *Manager) Transition(next State) State {
	m.mu.Lock()
	prev := m.current
	m.current = next
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if prev == next {
		return prev
	}
	for _, obs := range observers {
		obs(prev, next)
	}
	return prev
}

// Fail transitions to Error, recording the error for LastError. The UI
// surfaces the code/message and resets to Idle on acknowledgment
// (spec.md §7).
func (m *Manager) Fail(err *errkind.Error) {
	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()
	m.Transition(Error)
}

// LastError returns the error that drove the most recent transition
// into Error, or nil if none occurred since the last Acknowledge.
func (m *Manager) LastError() *errkind.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Acknowledge clears the last error and resets to Idle, per spec.md
// §7's "the UI surfaces a dialog and resets to Idle on user
// acknowledgment".
func (m *Manager) Acknowledge() {
	m.mu.Lock()
	m.lastError = nil
	m.mu.Unlock()
	m.Transition(Idle)
}
