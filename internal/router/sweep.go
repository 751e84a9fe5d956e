// ABOUTME: Reconciliation sweep healing divergent session/assignment state
// ABOUTME: Also retracts notices for clients that are no longer waiting

package router

import "github.com/magicair/chatdesk/internal/state"

// Sweep heals divergence between the assignment table and session modes,
// left behind by partial failures (a send that errored mid-transition, a
// restart without durable session state). Returns how many records were
// healed.
func (r *Router) Sweep() int {
	healed := 0

	// An assignment whose client no longer points back at the operator
	// is stale: drop it.
	for operatorID, clientID := range r.live.Assignments() {
		sess, ok := r.live.Session(clientID)
		if !ok || sess.Mode != state.ModeInManagerChat || sess.OperatorID != operatorID {
			r.live.DropAssignment(operatorID)
			r.logger.Warn("sweep dropped stale assignment", "operator_id", operatorID, "client_id", clientID)
			healed++
		}
	}

	// A manager-chat session with no matching assignment is stranded:
	// reset it so the client is not talking into the void.
	for clientID, operatorID := range r.live.ManagerChats() {
		assigned, ok := r.live.ClientOf(operatorID)
		if !ok || assigned != clientID {
			r.live.SetSession(clientID, state.Session{Mode: state.ModeIdle})
			r.logger.Warn("sweep reset stranded session", "client_id", clientID, "operator_id", operatorID)
			healed++
		}
	}

	// Outstanding notices for clients that are neither waiting nor
	// assigned point at conversations that no longer exist.
	for _, clientID := range r.live.NoticedClients() {
		if r.live.InQueue(clientID) {
			continue
		}
		if _, assigned := r.live.OperatorOf(clientID); assigned {
			continue
		}
		r.retractNotices(clientID)
		healed++
	}

	if healed > 0 {
		r.logger.Info("reconciliation sweep healed state", "records", healed)
	}
	return healed
}
