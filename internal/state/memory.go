// ABOUTME: In-memory Store implementation guarded by a single mutex
// ABOUTME: All invariant checks happen inside the critical section (validate-before-commit)

package state

import (
	"log/slog"
	"sync"
)

// Memory is the process-wide in-memory Store. A single mutex covers every
// map so that compound operations (Pickup, EndChat, ResetClient) observe
// and mutate a consistent snapshot.
type Memory struct {
	mu sync.Mutex

	sessions   map[int64]Session
	byOperator map[int64]int64 // operatorID -> clientID
	byClient   map[int64]int64 // clientID -> operatorID
	queue      []int64         // waiting clients in arrival order
	queued     map[int64]bool
	drafts     map[int64]Draft
	notices    map[int64][]Notice // clientID -> outstanding notices

	logger *slog.Logger
}

// NewMemory creates an empty in-memory store. Pass nil logger for default.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		sessions:   make(map[int64]Session),
		byOperator: make(map[int64]int64),
		byClient:   make(map[int64]int64),
		queued:     make(map[int64]bool),
		drafts:     make(map[int64]Draft),
		notices:    make(map[int64][]Notice),
		logger:     logger.With("component", "state"),
	}
}

// Session returns the stored session for id.
func (m *Memory) Session(id int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SetSession stores the session for id, replacing any previous mode.
func (m *Memory) SetSession(id int64, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
}

// DeleteSession removes the session for id.
func (m *Memory) DeleteSession(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ManagerChats returns a snapshot of clientID -> operatorID for every
// session currently in ModeInManagerChat.
func (m *Memory) ManagerChats() map[int64]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int64)
	for id, s := range m.sessions {
		if s.Mode == ModeInManagerChat {
			out[id] = s.OperatorID
		}
	}
	return out
}

// ClientOf returns the client currently assigned to operatorID.
func (m *Memory) ClientOf(operatorID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byOperator[operatorID]
	return c, ok
}

// OperatorOf returns the operator currently assigned to clientID.
func (m *Memory) OperatorOf(clientID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.byClient[clientID]
	return op, ok
}

// Assignments returns an operatorID -> clientID snapshot.
func (m *Memory) Assignments() map[int64]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int64, len(m.byOperator))
	for op, c := range m.byOperator {
		out[op] = c
	}
	return out
}

// DropAssignment removes the operator's pairing from both directions.
func (m *Memory) DropAssignment(operatorID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropLocked(operatorID)
}

// dropLocked is the internal teardown. Must be called with mu held.
func (m *Memory) dropLocked(operatorID int64) (int64, bool) {
	clientID, ok := m.byOperator[operatorID]
	if !ok {
		return 0, false
	}
	delete(m.byOperator, operatorID)
	delete(m.byClient, clientID)
	return clientID, true
}

// Enqueue adds a client to the waiting queue. Adding an already-assigned
// client violates the queue/assignment disjointness invariant and is
// rejected; re-adding a waiting client is a no-op.
func (m *Memory) Enqueue(clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, assigned := m.byClient[clientID]; assigned {
		return ErrClientTaken
	}
	if m.queued[clientID] {
		return nil
	}
	m.queued[clientID] = true
	m.queue = append(m.queue, clientID)
	return nil
}

// Dequeue removes a client from the waiting queue.
func (m *Memory) Dequeue(clientID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequeueLocked(clientID)
}

// dequeueLocked removes from both the set and the ordered slice. Must be
// called with mu held.
func (m *Memory) dequeueLocked(clientID int64) bool {
	if !m.queued[clientID] {
		return false
	}
	delete(m.queued, clientID)
	for i, id := range m.queue {
		if id == clientID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	return true
}

// InQueue reports whether the client is currently waiting.
func (m *Memory) InQueue(clientID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queued[clientID]
}

// Waiting returns the queue in arrival order.
func (m *Memory) Waiting() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.queue...)
}

// Pickup validates and commits an operator picking up a waiting client.
// All checks run inside the critical section, immediately before commit:
// when two operators race for the same client the first one through wins
// and the loser sees ErrNotWaiting.
func (m *Memory) Pickup(operatorID, clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, busy := m.byOperator[operatorID]; busy {
		if current == clientID {
			return ErrAlreadyPicked
		}
		return ErrOperatorBusy
	}
	if !m.queued[clientID] {
		return ErrNotWaiting
	}
	// Unreachable while the disjointness invariant holds, but Pickup is
	// the last line of defense, so check anyway.
	if _, taken := m.byClient[clientID]; taken {
		return ErrClientTaken
	}

	m.byOperator[operatorID] = clientID
	m.byClient[clientID] = operatorID
	m.dequeueLocked(clientID)
	m.sessions[clientID] = Session{Mode: ModeInManagerChat, OperatorID: operatorID}

	m.logger.Debug("pickup committed", "operator_id", operatorID, "client_id", clientID)
	return nil
}

// EndChat tears down the operator's assignment: the client's session
// resets to Idle and its draft lock is cleared.
func (m *Memory) EndChat(operatorID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clientID, ok := m.dropLocked(operatorID)
	if !ok {
		return 0, false
	}
	m.sessions[clientID] = Session{Mode: ModeIdle}
	m.unlockDraftLocked(clientID)
	return clientID, true
}

// ResetClient tears down from the client side: assignment (if any)
// dropped both ways, queue membership removed, session to Idle, draft
// lock cleared.
func (m *Memory) ResetClient(clientID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	operatorID, had := m.byClient[clientID]
	if had {
		delete(m.byClient, clientID)
		delete(m.byOperator, operatorID)
	}
	m.dequeueLocked(clientID)
	m.sessions[clientID] = Session{Mode: ModeIdle}
	m.unlockDraftLocked(clientID)
	return operatorID, had
}

// unlockDraftLocked clears the Sent lock so the client can start a fresh
// order after an explicit reset. Must be called with mu held.
func (m *Memory) unlockDraftLocked(clientID int64) {
	d, ok := m.drafts[clientID]
	if !ok {
		return
	}
	if d.Status == DraftSent {
		// A sent draft is finished; reset discards it entirely.
		delete(m.drafts, clientID)
		return
	}
	d.Locked = false
	m.drafts[clientID] = d
}

// Draft returns a copy of the client's draft.
func (m *Memory) Draft(clientID int64) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[clientID]
	if !ok {
		return Draft{}, false
	}
	return d.clone(), true
}

// PutDraft stores the client's draft. Status is monotonic: an update that
// moves status backwards is rejected with ErrStatusRegression.
func (m *Memory) PutDraft(clientID int64, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.drafts[clientID]; ok && d.Status < prev.Status {
		return ErrStatusRegression
	}
	m.drafts[clientID] = d.clone()
	return nil
}

// DeleteDraft removes the client's draft unconditionally. Used by the
// explicit "home" escape, which is the one sanctioned way out of Sent.
func (m *Memory) DeleteDraft(clientID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, clientID)
}

// AddNotice records an outstanding "new client" notice handle.
func (m *Memory) AddNotice(n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices[n.ClientID] = append(m.notices[n.ClientID], n)
}

// NoticedClients returns the clients with outstanding notices, for the
// reconciliation sweep.
func (m *Memory) NoticedClients() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.notices))
	for id := range m.notices {
		out = append(out, id)
	}
	return out
}

// TakeNotices removes and returns every outstanding notice for a client,
// across all operators.
func (m *Memory) TakeNotices(clientID int64) []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.notices[clientID]
	delete(m.notices, clientID)
	return out
}
