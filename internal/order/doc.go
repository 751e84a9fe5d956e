// ABOUTME: Package order classifies customer intent and aggregates order drafts
// ABOUTME: Collecting -> Ready -> Sent state machine with debounced auto-finalize

// Package order turns unstructured customer input (text, or a photo with
// an optional caption) into one consolidated order summary before a human
// operator is engaged. Classification is a pure keyword heuristic over
// externalized pattern tables; aggregation is a per-client state machine
// with a debounce timer that finalizes quiet drafts automatically.
package order
