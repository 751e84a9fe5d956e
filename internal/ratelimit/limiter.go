// ABOUTME: Thread-safe fixed-window rate limiter with cooldown per sender
// ABOUTME: Exceeding the cap blocks the sender for an absolute cooldown period

package ratelimit

import (
	"sync"
	"time"
)

// record tracks one sender's window and cooldown.
type record struct {
	count        int
	windowEndsAt time.Time
	blockedUntil time.Time
}

// Limiter counts messages per sender over a fixed window. A sender that
// exceeds the cap is blocked for the cooldown duration; during cooldown
// every check is rejected regardless of elapsed window resets.
type Limiter struct {
	mu      sync.Mutex
	records map[int64]*record

	cap      int
	window   time.Duration
	cooldown time.Duration

	now func() time.Time // injectable clock for tests

	done   chan struct{}
	closed bool
}

// New creates a limiter with the given cap per window and cooldown.
// A background goroutine periodically prunes idle records.
func New(cap int, window, cooldown time.Duration) *Limiter {
	l := &Limiter{
		records:  make(map[int64]*record),
		cap:      cap,
		window:   window,
		cooldown: cooldown,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether the sender may proceed. When blocked, wait is the
// remaining cooldown (always positive).
func (l *Limiter) Allow(senderID int64) (ok bool, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	r, exists := l.records[senderID]
	if !exists {
		r = &record{}
		l.records[senderID] = r
	}

	// Cooldown takes absolute precedence over window accounting.
	if now.Before(r.blockedUntil) {
		return false, r.blockedUntil.Sub(now)
	}

	if now.After(r.windowEndsAt) {
		r.count = 0
		r.windowEndsAt = now.Add(l.window)
	}

	r.count++
	if r.count > l.cap {
		r.blockedUntil = now.Add(l.cooldown)
		return false, l.cooldown
	}
	return true, 0
}

// WaitMinutes converts a wait duration to whole minutes, rounded up, with
// a floor of one so user-facing cooldown notices never say "0 хвилин".
func WaitMinutes(wait time.Duration) int {
	mins := int((wait + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return mins
}

// cleanup runs in a background goroutine, dropping records whose window
// and cooldown have both lapsed.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.done:
			return
		}
	}
}

// prune removes fully idle records.
func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, r := range l.records {
		if now.After(r.windowEndsAt) && now.After(r.blockedUntil) {
			delete(l.records, id)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
