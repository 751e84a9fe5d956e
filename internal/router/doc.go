// ABOUTME: Package router dispatches every inbound unit of conversation
// ABOUTME: Client priority chain, operator command surface, pickup protocol, sweep

// Package router is the bot's dispatcher. For every inbound update it
// determines the sender's role and session mode, enforces the assignment
// invariants, and routes to the order aggregator, the profile and search
// sub-flows, the operator relay, or the general responder. It also owns
// the pickup protocol and the periodic reconciliation sweep.
package router
