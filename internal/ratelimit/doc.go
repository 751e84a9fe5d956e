// ABOUTME: Package ratelimit throttles inbound message rates per sender
// ABOUTME: Fixed window with cap plus absolute cooldown once exceeded

// Package ratelimit implements the per-sender message throttle consulted
// before any further routing. State is memory-only by design: a restart
// clears it, which is acceptable for an abuse guard.
package ratelimit
