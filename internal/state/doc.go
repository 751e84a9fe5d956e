// ABOUTME: Package state holds all live routing state for chatdesk
// ABOUTME: Sessions, assignments, waiting queue, order drafts, notice registry

// Package state is the in-memory source of truth for the session router.
//
// It holds per-client sessions, the bidirectional operator↔client
// assignment table, the waiting queue, per-client order drafts, and the
// registry of outstanding "new client" notices. Two invariants are
// enforced at the store boundary rather than by callers:
//
//   - the assignment relation is a partial matching: no party ID appears
//     in more than one pairing;
//   - the waiting queue and the set of assigned clients are disjoint.
//
// Pickup is the validate-before-commit operation: all preconditions are
// re-checked inside one critical section at the instant of commit, so
// when two operators race for the same waiting client exactly one wins.
//
// State is deliberately not persisted; a process restart starts clean and
// the reconciliation sweep plus the defensive relay check heal whatever
// the transport half-delivered before the crash.
package state
