// ABOUTME: Package store is the cold persistence layer under the live bot state
// ABOUTME: Profiles, message log, promotions and state snapshots in SQLite

// Package store persists everything that should survive a restart:
// customer profiles, the append-only message log, active promotions and
// periodic full-state snapshots. It is best-effort cold storage and is
// never authoritative over live in-memory session state.
package store
