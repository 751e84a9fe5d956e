// ABOUTME: Router construction and the client-side dispatch priority chain
// ABOUTME: Implements order.Notifier so finalized drafts fan out through the transport

package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magicair/chatdesk/internal/ai"
	"github.com/magicair/chatdesk/internal/config"
	"github.com/magicair/chatdesk/internal/order"
	"github.com/magicair/chatdesk/internal/ratelimit"
	"github.com/magicair/chatdesk/internal/sched"
	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

// RateLimiter is the throttle consulted before any client processing.
type RateLimiter interface {
	Allow(senderID int64) (ok bool, wait time.Duration)
}

// Router dispatches inbound updates. It owns the order aggregator and
// acts as its Notifier.
type Router struct {
	cfg     *config.Config
	live    state.Store
	db      store.Store
	send    transport.Sender
	limiter RateLimiter
	timers  *sched.Scheduler
	agg     *order.Aggregator
	ai      ai.Completer
	history *ai.History
	logger  *slog.Logger
	now     func() time.Time

	// wizard scratch space, keyed by chat ID
	mu            sync.Mutex
	promoDrafts   map[int64]*store.Promotion
	profileDrafts map[int64]*store.Profile
}

// New wires the router and its aggregator.
func New(cfg *config.Config, live state.Store, db store.Store, send transport.Sender,
	limiter RateLimiter, timers *sched.Scheduler, completer ai.Completer,
	history *ai.History, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		cfg:     cfg,
		live:    live,
		db:      db,
		send:    send,
		limiter: limiter,
		timers:  timers,
		ai:      completer,
		history: history,
		logger:  logger.With("component", "router"),
		now:     time.Now,

		promoDrafts:   make(map[int64]*store.Promotion),
		profileDrafts: make(map[int64]*store.Profile),
	}
	r.agg = order.New(live, timers, r, cfg.OperatorIDs(), cfg.Orders.AutoFinalizeDelay, logger)
	return r
}

// HandleUpdate is the single entry point for every inbound unit.
func (r *Router) HandleUpdate(ctx context.Context, u transport.Update) {
	if u.Callback != nil {
		r.handleCallback(ctx, *u.Callback)
		return
	}
	if r.cfg.IsOperator(u.ChatID) {
		r.handleOperator(ctx, u)
		return
	}
	r.handleClient(ctx, u)
}

// handleClient runs the strict client priority chain.
func (r *Router) handleClient(ctx context.Context, u transport.Update) {
	clientID := u.ChatID

	if ok, wait := r.limiter.Allow(clientID); !ok {
		r.tell(clientID, fmt.Sprintf(
			"⏳ Забагато повідомлень. Зачекайте, будь ласка, %d хв.", ratelimit.WaitMinutes(wait)))
		return
	}

	// Cold storage is best-effort; the live state never waits on it.
	if err := r.db.TouchActivity(ctx, clientID, r.now()); err != nil {
		r.logger.Warn("activity touch failed", "client_id", clientID, "error", err)
	}

	if u.IsPhoto() {
		r.logInbound(ctx, clientID, store.KindPhoto, u.Caption)
		r.handleClientPhoto(clientID, u)
		return
	}

	r.logInbound(ctx, clientID, store.KindText, u.Text)
	r.handleClientText(ctx, clientID, u.Text)
}

// handleClientText dispatches a client text message in priority order:
// home escape, manager-chat relay, structured sub-flows, gratitude,
// live draft, menu vocabulary, order intent, general responder.
func (r *Router) handleClientText(ctx context.Context, clientID int64, text string) {
	if text == ButtonHome {
		r.goHome(ctx, clientID)
		return
	}

	sess, _ := r.live.Session(clientID)

	if sess.Mode == state.ModeInManagerChat {
		r.relayToOperator(ctx, clientID, sess.OperatorID, text)
		return
	}

	switch sess.Mode {
	case state.ModeProfileWizard:
		r.handleProfileStep(ctx, clientID, sess.Step, text)
		return
	case state.ModeAwaitingSearch:
		r.handleSearchQuery(clientID, text)
		return
	}

	if order.IsGratitude(text) {
		r.tell(clientID, "🙏 Будь ласка! Звертайтесь ще 😊")
		return
	}

	if r.agg.HasLiveDraft(clientID) {
		if text == order.ButtonSend {
			r.agg.Finalize(clientID)
		} else {
			r.agg.AddClarification(clientID, text)
		}
		return
	}

	if r.handleMenuButton(ctx, clientID, text) {
		return
	}

	switch order.ClassifyIntent(text) {
	case order.IntentOrder:
		if r.agg.HasSentDraft(clientID) {
			r.tell(clientID, order.MsgAwaitOperator)
			return
		}
		r.agg.StartText(clientID, text)
		return
	}

	r.respond(ctx, clientID, text)
}

// handleClientPhoto feeds an image into the draft lifecycle.
func (r *Router) handleClientPhoto(clientID int64, u transport.Update) {
	sess, _ := r.live.Session(clientID)
	if sess.Mode == state.ModeInManagerChat {
		r.relayPhotoToOperator(clientID, sess.OperatorID, u)
		return
	}
	if r.agg.HasSentDraft(clientID) {
		r.tell(clientID, order.MsgAwaitOperator)
		return
	}
	if r.agg.HasLiveDraft(clientID) {
		r.agg.AddImage(clientID, u.PhotoFileID, u.Caption)
		return
	}
	r.agg.StartImage(clientID, u.PhotoFileID, u.Caption)
}

// goHome is the global escape hatch. It unwinds whatever state the
// client is in and shows the main menu.
func (r *Router) goHome(ctx context.Context, clientID int64) {
	sess, _ := r.live.Session(clientID)

	if sess.Mode == state.ModeInManagerChat {
		operatorID := sess.OperatorID
		r.live.ResetClient(clientID)
		r.tellOperator(operatorID, "ℹ️ Клієнт завершив чат.")
		r.logger.Info("client left manager chat", "client_id", clientID, "operator_id", operatorID)
	} else if r.agg.HasLiveDraft(clientID) {
		// Silent discard: no fan-out, no ceremony.
		r.agg.Abort(clientID)
		r.live.ResetClient(clientID)
	} else {
		r.live.ResetClient(clientID)
	}

	r.timers.CancelAll(clientID)
	r.retractNotices(clientID)
	r.showMainMenu(clientID)
}

// relayToOperator passes a client message through verbatim, after
// checking the assignment mirror still holds.
func (r *Router) relayToOperator(ctx context.Context, clientID, operatorID int64, text string) {
	if assigned, ok := r.live.ClientOf(operatorID); !ok || assigned != clientID {
		// Divergence between session and assignment table. Heal inline.
		r.live.SetSession(clientID, state.Session{Mode: state.ModeIdle})
		r.tell(clientID, "⚠️ Зв'язок з менеджером втрачено. Надішліть повідомлення ще раз.")
		r.logger.Warn("healed broken assignment mirror", "client_id", clientID, "operator_id", operatorID)
		return
	}
	if _, err := r.send.SendText(operatorID, fmt.Sprintf("💬 Клієнт %d:\n%s", clientID, text)); err != nil {
		r.logger.Warn("relay to operator failed", "operator_id", operatorID, "error", err)
	}
	r.logRelay(ctx, clientID, operatorID, store.DirIn, text)
}

func (r *Router) relayPhotoToOperator(clientID, operatorID int64, u transport.Update) {
	if assigned, ok := r.live.ClientOf(operatorID); !ok || assigned != clientID {
		r.live.SetSession(clientID, state.Session{Mode: state.ModeIdle})
		r.tell(clientID, "⚠️ Зв'язок з менеджером втрачено. Надішліть повідомлення ще раз.")
		return
	}
	caption := fmt.Sprintf("💬 Фото від клієнта %d", clientID)
	if u.Caption != "" {
		caption += "\n" + u.Caption
	}
	if _, err := r.send.SendImage(operatorID, u.PhotoFileID, caption); err != nil {
		r.logger.Warn("photo relay failed", "operator_id", operatorID, "error", err)
	}
}

// retractNotices best-effort deletes outstanding "new client" notices.
func (r *Router) retractNotices(clientID int64) {
	for _, n := range r.live.TakeNotices(clientID) {
		if err := r.send.DeleteMessage(n.OperatorID, n.MessageID); err != nil {
			r.logger.Debug("notice retraction failed", "operator_id", n.OperatorID, "error", err)
		}
	}
}

// tell sends a plain text message to a client, swallowing send errors.
func (r *Router) tell(clientID int64, text string) {
	if _, err := r.send.SendText(clientID, text); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

func (r *Router) tellOperator(operatorID int64, text string) {
	if _, err := r.send.SendText(operatorID, text); err != nil {
		r.logger.Warn("send failed", "chat_id", operatorID, "error", err)
	}
}

func (r *Router) logInbound(ctx context.Context, clientID int64, kind, text string) {
	err := r.db.AppendLog(ctx, store.LogEntry{
		ClientID:  clientID,
		Direction: store.DirIn,
		Kind:      kind,
		Text:      text,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.logger.Warn("message log append failed", "client_id", clientID, "error", err)
	}
}

func (r *Router) logRelay(ctx context.Context, clientID, operatorID int64, dir, text string) {
	err := r.db.AppendLog(ctx, store.LogEntry{
		ClientID:   clientID,
		OperatorID: operatorID,
		Direction:  dir,
		Kind:       store.KindRelay,
		Text:       text,
		CreatedAt:  r.now(),
	})
	if err != nil {
		r.logger.Warn("relay log append failed", "client_id", clientID, "error", err)
	}
}

// TellClient implements order.Notifier.
func (r *Router) TellClient(clientID int64, text string) {
	r.tell(clientID, text)
}

// OfferSend implements order.Notifier: the reply carries the send and
// home controls as a persistent keyboard.
func (r *Router) OfferSend(clientID int64, text string) {
	kb := transport.Reply(
		[]string{order.ButtonSend},
		[]string{ButtonHome},
	)
	if _, err := r.send.SendText(clientID, text, kb); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

// NotifyOperator implements order.Notifier: delivers the order summary
// with a pickup button attached.
func (r *Router) NotifyOperator(operatorID int64, s order.Summary) (int, error) {
	text := s.Text
	if s.Queued {
		text += "\n\n⏳ Всі менеджери зайняті, клієнта додано в чергу."
	}
	kb := transport.Inline([]transport.Button{
		transport.Btn("💬 Забрати клієнта", fmt.Sprintf("client_chat_%d", s.ClientID)),
	})
	if s.ImageFileID != "" {
		return r.send.SendImage(operatorID, s.ImageFileID, text, kb)
	}
	return r.send.SendText(operatorID, text, kb)
}
