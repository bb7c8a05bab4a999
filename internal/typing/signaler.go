// Package typing turns a stream of input activity into edge-triggered
// start/stop typing notifications.
package typing

import (
	"sync"
	"time"

	"github.com/joebot/courier/internal/clock"
)

// DefaultQuietPeriod is how long input must pause before typing stops.
const DefaultQuietPeriod = 300 * time.Millisecond

// Callback receives true when typing starts and false when it stops.
// Callbacks must not call back into the Signaler.
type Callback func(typing bool)

type registration struct {
	fn Callback
}

// Signaler debounces activity into typing notifications. Consumers
// never see two consecutive notifications with the same value.
type Signaler struct {
	clock clock.Clock
	quiet time.Duration

	// notify serializes transitions with their delivery so that
	// notifications reach callbacks in the order they happened.
	notify sync.Mutex

	mu        sync.Mutex
	typing    bool
	timer     *clock.Timer
	gen       uint64
	callbacks []*registration
}

// New creates a Signaler. A nil clock selects the real clock and a
// non-positive quiet period the default.
func New(c clock.Clock, quiet time.Duration) *Signaler {
	if c == nil {
		c = clock.Real()
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Signaler{clock: c, quiet: quiet}
}

// SignalActivity records input. The first activity after a quiet
// period fires true; every call restarts the quiet timer.
func (s *Signaler) SignalActivity() {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	started := !s.typing
	s.typing = true
	s.timer.Stop()
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.quiet, func() { s.quietElapsed(gen) })
	callbacks := s.snapshotLocked()
	s.mu.Unlock()

	if started {
		fire(callbacks, true)
	}
}

func (s *Signaler) quietElapsed(gen uint64) {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.timer = nil
	callbacks := s.snapshotLocked()
	s.mu.Unlock()

	fire(callbacks, false)
}

// AddCallback registers fn and returns a function removing exactly
// that registration.
func (s *Signaler) AddCallback(fn Callback) (remove func()) {
	reg := &registration{fn: fn}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, reg)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, r := range s.callbacks {
			if r == reg {
				s.callbacks = append(s.callbacks[:i:i], s.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Typing reports the current state.
func (s *Signaler) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Clear cancels the quiet timer, sends false if typing was active and
// removes all callbacks.
func (s *Signaler) Clear() {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	s.timer.Stop()
	s.timer = nil
	s.gen++
	wasTyping := s.typing
	s.typing = false
	callbacks := s.snapshotLocked()
	s.callbacks = nil
	s.mu.Unlock()

	if wasTyping {
		fire(callbacks, false)
	}
}

func (s *Signaler) snapshotLocked() []*registration {
	return append([]*registration(nil), s.callbacks...)
}

func fire(callbacks []*registration, typing bool) {
	for _, c := range callbacks {
		c.fn(typing)
	}
}
