// ABOUTME: Per-client order draft state machine with debounced auto-finalize
// ABOUTME: Collects clarifications, builds the operator summary, fans it out

package order

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magicair/chatdesk/internal/sched"
	"github.com/magicair/chatdesk/internal/state"
)

// Customer-facing replies. Exported where the router reuses them.
const (
	// MsgAwaitOperator answers a second order attempt while a prior draft
	// is already with the managers.
	MsgAwaitOperator = "⏳ Ваше замовлення вже передано менеджеру. Зачекайте, будь ласка, відповіді."

	msgPressSend = "Деталі збережено. Натисніть «" + ButtonSend + "», щоб передати замовлення менеджеру."

	msgSent = "✅ Замовлення передано менеджеру! З вами звʼяжуться найближчим часом."

	msgPhotoReceived = "📷 Фото отримали! Опишіть, будь ласка, що саме вас цікавить."

	msgPhotoAdded = "📷 Фото додали до замовлення. Натисніть «" + ButtonSend + "» або опишіть деталі текстом."
)

// ButtonSend is the explicit send control shown while a draft is live.
const ButtonSend = "📤 Надіслати менеджеру"

// Summary is the finalized draft as delivered to operators.
type Summary struct {
	ClientID    int64
	Text        string
	ImageFileID string // set for photo-born drafts
	Queued      bool   // true when every operator was busy at fan-out time
}

// Notifier delivers aggregator output. The router implements it on top of
// the transport, attaching the send/home controls to client prompts and a
// pickup button to operator notices.
type Notifier interface {
	// TellClient sends a plain reply to the client.
	TellClient(clientID int64, text string)
	// OfferSend sends a reply to the client with the send control attached.
	OfferSend(clientID int64, text string)
	// NotifyOperator delivers a new-order notice to one operator and
	// returns the message ID of the notice for later retraction.
	NotifyOperator(operatorID int64, s Summary) (int, error)
}

// Aggregator owns the draft lifecycle for every client.
type Aggregator struct {
	store     state.Store
	timers    *sched.Scheduler
	notify    Notifier
	operators []int64
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an aggregator. delay is the quiet period before a live
// draft auto-finalizes.
func New(store state.Store, timers *sched.Scheduler, notify Notifier, operators []int64, delay time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:     store,
		timers:    timers,
		notify:    notify,
		operators: operators,
		delay:     delay,
		logger:    logger.With("component", "order"),
		now:       time.Now,
	}
}

// HasLiveDraft reports whether the client has a draft that is still
// accepting input.
func (a *Aggregator) HasLiveDraft(clientID int64) bool {
	d, ok := a.store.Draft(clientID)
	return ok && d.Status != state.DraftSent
}

// HasSentDraft reports whether the client's draft is already with the
// managers.
func (a *Aggregator) HasSentDraft(clientID int64) bool {
	d, ok := a.store.Draft(clientID)
	return ok && d.Status == state.DraftSent
}

// StartText begins a draft from an order-intent text message.
func (a *Aggregator) StartText(clientID int64, text string) {
	d := state.Draft{
		Status:    state.DraftCollecting,
		Origin:    state.OriginText,
		Primary:   text,
		CreatedAt: a.now(),
	}

	sig := DetectSignals(text)
	if sig.Count() >= ReadySignals {
		d.Status = state.DraftReady
	}

	if err := a.store.PutDraft(clientID, d); err != nil {
		a.logger.Warn("draft create rejected", "client_id", clientID, "error", err)
		return
	}
	a.store.SetSession(clientID, state.Session{Mode: state.ModeOrderCollecting})
	a.arm(clientID)

	if d.Status == state.DraftReady {
		a.notify.OfferSend(clientID, a.readyReply(d))
	} else {
		a.notify.OfferSend(clientID, clarifyReply(sig))
	}
	a.logger.Info("draft started", "client_id", clientID, "status", d.Status.String())
}

// StartImage begins a draft from a photo. A caption, when present, counts
// as the order description and the draft is Ready immediately.
func (a *Aggregator) StartImage(clientID int64, fileID, caption string) {
	d := state.Draft{
		Status:    state.DraftCollecting,
		Origin:    state.OriginImage,
		Primary:   fileID,
		Caption:   caption,
		CreatedAt: a.now(),
	}
	if caption != "" {
		d.Status = state.DraftReady
	}

	if err := a.store.PutDraft(clientID, d); err != nil {
		a.logger.Warn("draft create rejected", "client_id", clientID, "error", err)
		return
	}
	a.store.SetSession(clientID, state.Session{Mode: state.ModeOrderCollecting})
	a.arm(clientID)

	if d.Status == state.DraftReady {
		a.notify.OfferSend(clientID, a.readyReply(d))
	} else {
		a.notify.TellClient(clientID, msgPhotoReceived)
	}
	a.logger.Info("draft started", "client_id", clientID, "origin", "image", "status", d.Status.String())
}

// AddClarification feeds a follow-up message into a live draft. For a
// photo draft without a caption the first clarification becomes the
// caption; a second one is rejected with a prompt to press send.
func (a *Aggregator) AddClarification(clientID int64, text string) {
	d, ok := a.store.Draft(clientID)
	if !ok || d.Status == state.DraftSent {
		return
	}

	if d.Origin == state.OriginImage {
		if d.Caption != "" {
			a.notify.OfferSend(clientID, msgPressSend)
			return
		}
		d.Caption = text
		d.Status = state.DraftReady
		if err := a.store.PutDraft(clientID, d); err != nil {
			a.logger.Warn("draft update rejected", "client_id", clientID, "error", err)
			return
		}
		a.arm(clientID)
		a.notify.OfferSend(clientID, a.readyReply(d))
		return
	}

	d.Clarifications = append(d.Clarifications, text)

	combined := d.Primary + " " + strings.Join(d.Clarifications, " ")
	sig := DetectSignals(combined)
	if d.Status == state.DraftCollecting && sig.Count() >= ReadySignals {
		d.Status = state.DraftReady
	}

	if err := a.store.PutDraft(clientID, d); err != nil {
		a.logger.Warn("draft update rejected", "client_id", clientID, "error", err)
		return
	}
	a.arm(clientID)

	if d.Status == state.DraftReady {
		a.notify.OfferSend(clientID, a.readyReply(d))
	} else {
		a.notify.OfferSend(clientID, clarifyReply(sig))
	}
}

// AddImage feeds a photo into a live draft. A photo-born draft keeps its
// original image and the client is nudged to send; a text-born draft
// gains the photo as an attachment, with any caption counted as a
// clarification. The original text is never overwritten.
func (a *Aggregator) AddImage(clientID int64, fileID, caption string) {
	d, ok := a.store.Draft(clientID)
	if !ok || d.Status == state.DraftSent {
		return
	}

	if d.Origin == state.OriginImage {
		if caption != "" {
			a.AddClarification(clientID, caption)
			return
		}
		a.notify.OfferSend(clientID, msgPressSend)
		return
	}

	d.Attachment = fileID
	if caption != "" {
		d.Clarifications = append(d.Clarifications, caption)
	}

	combined := d.Primary + " " + strings.Join(d.Clarifications, " ")
	sig := DetectSignals(combined)
	if d.Status == state.DraftCollecting && sig.Count() >= ReadySignals {
		d.Status = state.DraftReady
	}

	if err := a.store.PutDraft(clientID, d); err != nil {
		a.logger.Warn("draft update rejected", "client_id", clientID, "error", err)
		return
	}
	a.arm(clientID)

	if d.Status == state.DraftReady {
		a.notify.OfferSend(clientID, a.readyReply(d))
	} else {
		a.notify.OfferSend(clientID, msgPhotoAdded)
	}
}

// Finalize commits the draft: cancels the debounce timer, fans the
// summary out to operators, records notice handles, queues the client
// and marks the draft Sent. Calling it on an already-Sent draft is a
// no-op.
func (a *Aggregator) Finalize(clientID int64) {
	d, ok := a.store.Draft(clientID)
	if !ok || d.Status == state.DraftSent {
		return
	}

	a.timers.Cancel(sched.Key{PartyID: clientID, Kind: sched.KindAutoFinalize})

	// Commit first so a racing second finalize sees Sent and backs off.
	d.Status = state.DraftSent
	d.Locked = true
	if err := a.store.PutDraft(clientID, d); err != nil {
		a.logger.Warn("finalize commit rejected", "client_id", clientID, "error", err)
		return
	}

	s := a.buildSummary(clientID, d)

	targets := a.unassignedOperators()
	if len(targets) == 0 {
		targets = a.operators
		s.Queued = true
	}
	for _, op := range targets {
		msgID, err := a.notify.NotifyOperator(op, s)
		if err != nil {
			// Best-effort fan-out: one operator's failure never blocks the rest.
			a.logger.Warn("operator notice failed", "operator_id", op, "error", err)
			continue
		}
		a.store.AddNotice(state.Notice{OperatorID: op, ClientID: clientID, MessageID: msgID})
	}

	if err := a.store.Enqueue(clientID); err != nil {
		a.logger.Warn("enqueue after finalize failed", "client_id", clientID, "error", err)
	}
	a.store.SetSession(clientID, state.Session{Mode: state.ModeIdle})

	a.notify.TellClient(clientID, msgSent)
	a.logger.Info("draft finalized", "client_id", clientID, "operators_notified", len(targets), "queued", s.Queued)
}

// Abort discards a live draft silently: no fan-out, no reply. Used by the
// explicit "home" escape.
func (a *Aggregator) Abort(clientID int64) {
	a.timers.Cancel(sched.Key{PartyID: clientID, Kind: sched.KindAutoFinalize})
	a.store.DeleteDraft(clientID)
	a.logger.Info("draft aborted", "client_id", clientID)
}

// arm cancel-and-reschedules the auto-finalize timer for the client.
func (a *Aggregator) arm(clientID int64) {
	a.timers.Schedule(sched.Key{PartyID: clientID, Kind: sched.KindAutoFinalize}, a.delay, func() {
		a.autoFinalize(clientID)
	})
}

// autoFinalize is the debounce callback. The session may have been reset
// between scheduling and firing, so it re-checks freshness before acting.
func (a *Aggregator) autoFinalize(clientID int64) {
	d, ok := a.store.Draft(clientID)
	if !ok || d.Status == state.DraftSent {
		return
	}
	a.logger.Info("auto-finalizing quiet draft", "client_id", clientID)
	a.Finalize(clientID)
}

// unassignedOperators returns configured operators with no active chat.
func (a *Aggregator) unassignedOperators() []int64 {
	var out []int64
	for _, op := range a.operators {
		if _, busy := a.store.ClientOf(op); !busy {
			out = append(out, op)
		}
	}
	return out
}

// buildSummary renders the operator-facing order text.
func (a *Aggregator) buildSummary(clientID int64, d state.Draft) Summary {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 Нове замовлення!\n\n👤 Клієнт: %d\n", clientID)

	if d.Origin == state.OriginImage {
		b.WriteString("📷 Замовлення з фото")
		if d.Caption != "" {
			b.WriteString("\n📝 " + d.Caption)
		}
	} else {
		b.WriteString("📝 " + d.Primary)
		if d.Attachment != "" {
			b.WriteString("\n📷 Фото додано")
		}
	}
	for _, c := range d.Clarifications {
		b.WriteString("\n• " + c)
	}

	s := Summary{ClientID: clientID, Text: b.String()}
	if d.Origin == state.OriginImage {
		s.ImageFileID = d.Primary
	} else if d.Attachment != "" {
		s.ImageFileID = d.Attachment
	}
	return s
}

// readyReply echoes the collected order back and offers immediate send.
func (a *Aggregator) readyReply(d state.Draft) string {
	var b strings.Builder
	b.WriteString("✅ Дякуємо! Ось ваше замовлення:\n\n")
	if d.Origin == state.OriginImage {
		b.WriteString("📷 Фото")
		if d.Caption != "" {
			b.WriteString(": " + d.Caption)
		}
	} else {
		b.WriteString(d.Primary)
		if d.Attachment != "" {
			b.WriteString("\n📷 Фото додано")
		}
	}
	for _, c := range d.Clarifications {
		b.WriteString("\n• " + c)
	}
	b.WriteString("\n\nНатисніть «" + ButtonSend + "» або додайте ще деталі.")
	return b.String()
}

// clarifyReply enumerates exactly the missing completeness signals.
func clarifyReply(sig Signals) string {
	var b strings.Builder
	b.WriteString("📝 Записали! Щоб менеджер опрацював замовлення швидше, уточніть, будь ласка:\n")
	for _, m := range sig.Missing() {
		b.WriteString("• " + m + "\n")
	}
	b.WriteString("\nАбо натисніть «" + ButtonSend + "» — і менеджер уточнить деталі сам.")
	return b.String()
}
