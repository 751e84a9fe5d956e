// ABOUTME: Package ai is the text-completion fallback responder
// ABOUTME: OpenAI-backed Completer plus a TTL-bounded rolling history per client

// Package ai answers free-text customer messages that no other handler
// claimed. It keeps a short rolling conversation window per client and
// makes exactly one completion attempt per message; on timeout or error
// the caller falls back to a static reply.
package ai
