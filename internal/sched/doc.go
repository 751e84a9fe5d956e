// ABOUTME: Package sched provides keyed one-shot timers for debounced actions
// ABOUTME: Re-scheduling a key atomically cancels the previous timer

// Package sched is a small registry of keyed one-shot timers. The order
// aggregator uses it to debounce auto-finalization: every clarification
// re-arms the client's timer, and only the last armed timer fires.
package sched
