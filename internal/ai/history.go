// ABOUTME: Per-client rolling conversation history with TTL expiry
// ABOUTME: Also answers whether a returning client deserves a fresh greeting

package ai

import (
	"sync"
	"time"
)

// Message is one turn of a client conversation.
type Message struct {
	Role string // "user" or "assistant"
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type entry struct {
	msgs []Message
	last time.Time
}

// History keeps a bounded rolling message window per client. A window
// untouched for longer than the TTL is discarded wholesale: a customer
// returning after hours should not be answered in the context of a
// conversation they have forgotten.
type History struct {
	mu       sync.Mutex
	byClient map[int64]*entry
	size     int
	ttl      time.Duration

	now func() time.Time
}

// NewHistory creates a history buffer keeping at most size messages per
// client, expiring after ttl of inactivity.
func NewHistory(size int, ttl time.Duration) *History {
	return &History{
		byClient: make(map[int64]*entry),
		size:     size,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Append records a turn, evicting the oldest once the window is full.
func (h *History) Append(clientID int64, role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	e := h.byClient[clientID]
	if e == nil || now.Sub(e.last) > h.ttl {
		e = &entry{}
		h.byClient[clientID] = e
	}
	e.msgs = append(e.msgs, Message{Role: role, Text: text})
	if len(e.msgs) > h.size {
		e.msgs = e.msgs[len(e.msgs)-h.size:]
	}
	e.last = now
}

// Window returns the client's live message window, empty if expired.
func (h *History) Window(clientID int64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.byClient[clientID]
	if e == nil {
		return nil
	}
	if h.now().Sub(e.last) > h.ttl {
		delete(h.byClient, clientID)
		return nil
	}
	return append([]Message(nil), e.msgs...)
}

// NeedsGreeting reports whether the client has been quiet long enough
// that their next contact warrants a fresh hello.
func (h *History) NeedsGreeting(clientID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.byClient[clientID]
	return e == nil || h.now().Sub(e.last) > h.ttl
}

// Clear drops the client's window entirely.
func (h *History) Clear(clientID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byClient, clientID)
}
