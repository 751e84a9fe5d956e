// ABOUTME: General responder: AI completion over the rolling history window
// ABOUTME: Single attempt with a static fallback, greeting after long silence

package router

import (
	"context"

	"github.com/magicair/chatdesk/internal/ai"
)

const fallbackReply = "Вибачте, сталася помилка. Спробуйте ще раз або натисніть «" + ButtonManager + "» 💬"

// respond is the last link of the priority chain: the message matched
// nothing structured, so the completion service answers it.
func (r *Router) respond(ctx context.Context, clientID int64, text string) {
	greet := r.history.NeedsGreeting(clientID)
	window := r.history.Window(clientID)
	r.history.Append(clientID, ai.RoleUser, text)

	reply, err := r.ai.Complete(ctx, window, text)
	if err != nil {
		r.logger.Warn("completion failed", "client_id", clientID, "error", err)
		r.tell(clientID, fallbackReply)
		return
	}

	if greet {
		reply = "Привіт! Раді бачити вас у MagicAir 👋\n\n" + reply
	}
	r.history.Append(clientID, ai.RoleAssistant, reply)
	r.tell(clientID, reply)
}
