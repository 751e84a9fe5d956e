// ABOUTME: Keyed one-shot timer registry built on time.AfterFunc
// ABOUTME: Schedule replaces, Cancel stops, Close stops everything

package sched

import (
	"log/slog"
	"sync"
	"time"
)

// Key identifies a scheduled action: the party it belongs to and what
// kind of action it is. One timer may be live per key.
type Key struct {
	PartyID int64
	Kind    string
}

// Timer kinds used across the bot.
const (
	KindAutoFinalize = "auto_finalize"
	KindGreeting     = "greeting_reset"
)

// Scheduler owns a set of keyed one-shot timers. All methods are safe for
// concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	timers map[Key]*time.Timer
	closed bool

	logger *slog.Logger
}

// New creates an empty scheduler. Pass nil logger for default.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers: make(map[Key]*time.Timer),
		logger: logger.With("component", "sched"),
	}
}

// Schedule arms fn to run after d, replacing any timer already live for
// the key. The replacement is atomic: the old timer cannot fire once
// Schedule returns. fn runs on the timer goroutine; it must not block.
func (s *Scheduler) Schedule(key Key, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		// A timer that fired after being replaced must not run its action.
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

// Cancel stops the live timer for key, if any.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	return true
}

// CancelAll stops every live timer belonging to partyID, across kinds.
func (s *Scheduler) CancelAll(partyID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		if key.PartyID == partyID {
			t.Stop()
			delete(s.timers, key)
		}
	}
}

// Pending reports whether a timer is live for key.
func (s *Scheduler) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Close stops every timer and rejects further scheduling.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
