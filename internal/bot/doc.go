// ABOUTME: Package bot wires the transport, router, stores and timers together
// ABOUTME: Owns the main update loop, the sweep ticker and daily maintenance

// Package bot is the composition root. It builds every component from
// configuration, runs the inbound update loop, and drives the periodic
// jobs: the reconciliation sweep, hourly state snapshots, birthday
// greetings and expired-promotion purges.
package bot
