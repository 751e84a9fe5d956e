// ABOUTME: Operator command surface: pickup, relay, end-chat, wizards, stats
// ABOUTME: Reserved labels take absolute priority over free-text relay

package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

// Operator menu button labels.
const (
	ButtonClients       = "📋 Клієнти"
	ButtonPromosAdmin   = "🎁 Активні акції"
	ButtonJournal       = "📄 Журнал"
	ButtonHistorySearch = "🔍 Пошук історії"
	ButtonStats         = "📊 Статистика"
	ButtonEndChat       = "🛑 Завершити чат"
	ButtonNewPromo      = "➕ Нова акція"
)

const historyPageSize = 20

func operatorMenuKeyboard() transport.Keyboard {
	return transport.Reply(
		[]string{ButtonClients, ButtonPromosAdmin},
		[]string{ButtonJournal, ButtonHistorySearch},
		[]string{ButtonStats, ButtonEndChat},
	)
}

// handleOperator dispatches an operator update: reserved commands first,
// wizard steps next, then free-text relay to the assigned client.
func (r *Router) handleOperator(ctx context.Context, u transport.Update) {
	operatorID := u.ChatID

	if u.IsPhoto() {
		r.relayPhotoToClient(ctx, operatorID, u)
		return
	}
	text := u.Text

	switch text {
	case ButtonClients:
		r.sendWaitingClients(operatorID)
		return
	case ButtonPromosAdmin:
		r.sendPromoAdmin(ctx, operatorID)
		return
	case ButtonNewPromo:
		r.startPromoWizard(operatorID)
		return
	case ButtonJournal:
		r.sendJournal(ctx, operatorID)
		return
	case ButtonHistorySearch:
		r.live.SetSession(operatorID, state.Session{Mode: state.ModeAwaitingHistoryQuery})
		r.tellOperator(operatorID, "🔍 Введіть текст або ID клієнта для пошуку в історії.")
		return
	case ButtonStats:
		r.sendStats(ctx, operatorID)
		return
	case ButtonEndChat:
		r.endChat(operatorID)
		return
	}

	sess, _ := r.live.Session(operatorID)
	switch sess.Mode {
	case state.ModePromoWizard:
		r.handlePromoStep(ctx, operatorID, sess.Step, text)
		return
	case state.ModeAwaitingHistoryQuery:
		r.live.SetSession(operatorID, state.Session{Mode: state.ModeIdle})
		r.sendHistorySearch(ctx, operatorID, text)
		return
	}

	if clientID, ok := r.live.ClientOf(operatorID); ok {
		r.relayToClient(ctx, operatorID, clientID, text)
		return
	}

	if _, err := r.send.SendText(operatorID, "👨‍💼 Панель менеджера:", operatorMenuKeyboard()); err != nil {
		r.logger.Warn("send failed", "chat_id", operatorID, "error", err)
	}
}

// pickup runs the assignment protocol for a "take client" button press.
// The state store re-validates inside its critical section, so the
// losing side of a same-tick race gets ErrNotWaiting here.
func (r *Router) pickup(ctx context.Context, operatorID, clientID int64) {
	if !r.cfg.IsOperator(operatorID) {
		r.logger.Warn("pickup from non-operator", "chat_id", operatorID)
		return
	}

	switch err := r.live.Pickup(operatorID, clientID); err {
	case nil:
	case state.ErrAlreadyPicked:
		r.tellOperator(operatorID, "ℹ️ Ви вже спілкуєтесь з цим клієнтом.")
		return
	case state.ErrOperatorBusy:
		r.tellOperator(operatorID, "⚠️ Спочатку завершіть поточний чат («"+ButtonEndChat+"»).")
		return
	case state.ErrClientTaken:
		opName := "іншим менеджером"
		if op, ok := r.live.OperatorOf(clientID); ok {
			opName = r.cfg.OperatorName(op)
		}
		r.tellOperator(operatorID, "⚠️ Клієнт уже спілкується з "+opName+".")
		return
	default: // state.ErrNotWaiting
		r.tellOperator(operatorID, "⚠️ Клієнт уже недоступний.")
		return
	}

	r.retractNotices(clientID)

	name := r.cfg.OperatorName(operatorID)
	r.tell(clientID, fmt.Sprintf("👨‍💼 Менеджер %s приєднався до чату! Напишіть ваше питання.", name))
	r.tellOperator(operatorID, fmt.Sprintf("✅ Ви підключені до клієнта %d. Всі повідомлення будуть передані йому.", clientID))

	r.logRelay(ctx, clientID, operatorID, store.DirOut, "чат розпочато")
	r.logger.Info("pickup", "operator_id", operatorID, "client_id", clientID)
}

// endChat tears the operator's assignment down from the operator side.
func (r *Router) endChat(operatorID int64) {
	clientID, ok := r.live.EndChat(operatorID)
	if !ok {
		r.tellOperator(operatorID, "ℹ️ У вас немає активного чату.")
		return
	}
	r.timers.CancelAll(clientID)
	r.retractNotices(clientID)

	if _, err := r.send.SendText(clientID, "✅ Менеджер завершив чат. Дякуємо за звернення!", mainMenuKeyboard()); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
	r.tellOperator(operatorID, "✅ Чат завершено.")
	r.logger.Info("chat ended", "operator_id", operatorID, "client_id", clientID)
}

// relayToClient passes operator text through verbatim.
func (r *Router) relayToClient(ctx context.Context, operatorID, clientID int64, text string) {
	name := r.cfg.OperatorName(operatorID)
	if _, err := r.send.SendText(clientID, fmt.Sprintf("👨‍💼 %s:\n%s", name, text)); err != nil {
		r.logger.Warn("relay to client failed", "client_id", clientID, "error", err)
		r.tellOperator(operatorID, "⚠️ Не вдалося доставити повідомлення клієнту.")
		return
	}
	r.logRelay(ctx, clientID, operatorID, store.DirOut, text)
}

func (r *Router) relayPhotoToClient(ctx context.Context, operatorID int64, u transport.Update) {
	clientID, ok := r.live.ClientOf(operatorID)
	if !ok {
		r.tellOperator(operatorID, "ℹ️ У вас немає активного чату.")
		return
	}
	if _, err := r.send.SendImage(clientID, u.PhotoFileID, u.Caption); err != nil {
		r.logger.Warn("photo relay failed", "client_id", clientID, "error", err)
		return
	}
	r.logRelay(ctx, clientID, operatorID, store.DirOut, "[фото] "+u.Caption)
}

// sendWaitingClients lists the queue with pickup buttons.
func (r *Router) sendWaitingClients(operatorID int64) {
	waiting := r.live.Waiting()
	if len(waiting) == 0 {
		r.tellOperator(operatorID, "📋 Черга порожня — всі клієнти обслужені.")
		return
	}

	rows := make([][]transport.Button, 0, len(waiting))
	for _, clientID := range waiting {
		rows = append(rows, []transport.Button{
			transport.Btn(fmt.Sprintf("💬 Клієнт %d", clientID), fmt.Sprintf("client_chat_%d", clientID)),
		})
	}
	text := fmt.Sprintf("📋 Клієнтів у черзі: %d", len(waiting))
	if _, err := r.send.SendText(operatorID, text, transport.Inline(rows...)); err != nil {
		r.logger.Warn("send failed", "chat_id", operatorID, "error", err)
	}
}

// sendPromoAdmin shows active campaigns with the create control.
func (r *Router) sendPromoAdmin(ctx context.Context, operatorID int64) {
	promos, err := r.db.ActivePromotions(ctx)
	if err != nil {
		r.logger.Warn("promotions query failed", "error", err)
		r.tellOperator(operatorID, "⚠️ Не вдалося завантажити акції.")
		return
	}

	var b strings.Builder
	if len(promos) == 0 {
		b.WriteString("🎁 Активних акцій немає.")
	} else {
		fmt.Fprintf(&b, "🎁 Активних акцій: %d\n", len(promos))
		for _, p := range promos {
			fmt.Fprintf(&b, "\n• %s — до %s\n  %s\n", p.Title, p.EndDate.Format("02.01.2006"), p.Description)
		}
	}
	kb := transport.Reply(
		[]string{ButtonNewPromo},
		[]string{ButtonClients, ButtonStats},
	)
	if _, err := r.send.SendText(operatorID, b.String(), kb); err != nil {
		r.logger.Warn("send failed", "chat_id", operatorID, "error", err)
	}
}

// startPromoWizard begins the three-step campaign form.
func (r *Router) startPromoWizard(operatorID int64) {
	r.mu.Lock()
	r.promoDrafts[operatorID] = &store.Promotion{CreatedBy: operatorID}
	r.mu.Unlock()

	r.live.SetSession(operatorID, state.Session{Mode: state.ModePromoWizard, Step: state.StepPromoTitle})
	r.tellOperator(operatorID, "🎁 Нова акція. Крок 1/3: введіть назву.")
}

// handlePromoStep advances the campaign form. A failed validation
// re-prompts without advancing.
func (r *Router) handlePromoStep(ctx context.Context, operatorID int64, step state.Step, text string) {
	r.mu.Lock()
	draft := r.promoDrafts[operatorID]
	r.mu.Unlock()
	if draft == nil {
		r.live.SetSession(operatorID, state.Session{Mode: state.ModeIdle})
		return
	}

	switch step {
	case state.StepPromoTitle:
		if strings.TrimSpace(text) == "" {
			r.tellOperator(operatorID, "⚠️ Назва не може бути порожньою. Спробуйте ще раз.")
			return
		}
		draft.Title = strings.TrimSpace(text)
		r.live.SetSession(operatorID, state.Session{Mode: state.ModePromoWizard, Step: state.StepPromoDescription})
		r.tellOperator(operatorID, "Крок 2/3: введіть опис акції.")

	case state.StepPromoDescription:
		draft.Description = strings.TrimSpace(text)
		r.live.SetSession(operatorID, state.Session{Mode: state.ModePromoWizard, Step: state.StepPromoEndDate})
		r.tellOperator(operatorID, "Крок 3/3: введіть дату завершення у форматі ДД.ММ.РРРР.")

	case state.StepPromoEndDate:
		end, err := time.ParseInLocation("02.01.2006", strings.TrimSpace(text), r.cfg.Location())
		if err != nil || end.Before(r.now()) {
			r.tellOperator(operatorID, "⚠️ Введіть майбутню дату у форматі ДД.ММ.РРРР, наприклад 31.12.2026.")
			return
		}
		draft.EndDate = end.Add(24*time.Hour - time.Second) // inclusive through the end of the day

		if err := r.db.CreatePromotion(ctx, *draft); err != nil {
			r.logger.Warn("promotion create failed", "error", err)
			r.tellOperator(operatorID, "⚠️ Не вдалося зберегти акцію. Спробуйте пізніше.")
		} else {
			r.tellOperator(operatorID, "✅ Акцію «"+draft.Title+"» створено!")
			r.broadcastPromotion(ctx, *draft)
		}

		r.mu.Lock()
		delete(r.promoDrafts, operatorID)
		r.mu.Unlock()
		r.live.SetSession(operatorID, state.Session{Mode: state.ModeIdle})
	}
}

// broadcastPromotion pushes a fresh campaign to every opted-in profile.
// Failures are per-client; one blocked chat never stops the rest.
func (r *Router) broadcastPromotion(ctx context.Context, p store.Promotion) {
	profiles, err := r.db.ListProfiles(ctx)
	if err != nil {
		r.logger.Warn("promotion broadcast query failed", "error", err)
		return
	}

	text := fmt.Sprintf("🎁 Нова акція в MagicAir!\n\n%s\n\n%s\n\n⏰ Діє до: %s\n\n🛒 Встигніть скористатися!",
		p.Title, p.Description, p.EndDate.Format("02.01.2006"))

	notified := 0
	for _, profile := range profiles {
		if !profile.Notifications || profile.Name == "" {
			continue
		}
		if _, err := r.send.SendText(profile.ClientID, text); err != nil {
			r.logger.Warn("promotion broadcast failed", "client_id", profile.ClientID, "error", err)
			continue
		}
		notified++
	}
	r.logger.Info("promotion broadcast", "title", p.Title, "notified", notified)
}

// sendJournal shows the latest log lines.
func (r *Router) sendJournal(ctx context.Context, operatorID int64) {
	entries, err := r.db.SearchLog(ctx, "", historyPageSize)
	if err != nil {
		r.logger.Warn("journal query failed", "error", err)
		r.tellOperator(operatorID, "⚠️ Не вдалося завантажити журнал.")
		return
	}
	r.tellOperator(operatorID, formatLog("📄 Останні повідомлення", entries))
}

// sendHistorySearch answers a history query: numeric input is treated as
// a client ID, anything else as full-text search.
func (r *Router) sendHistorySearch(ctx context.Context, operatorID int64, query string) {
	query = strings.TrimSpace(query)

	var entries []store.LogEntry
	var err error
	if clientID, convErr := parseClientID(query); convErr == nil {
		entries, err = r.db.ClientHistory(ctx, clientID, historyPageSize, 0)
	} else {
		entries, err = r.db.SearchLog(ctx, query, historyPageSize)
	}
	if err != nil {
		r.logger.Warn("history search failed", "error", err)
		r.tellOperator(operatorID, "⚠️ Помилка пошуку. Спробуйте ще раз.")
		return
	}
	r.tellOperator(operatorID, formatLog("🔍 Результати пошуку «"+query+"»", entries))
}

// sendStats reports the aggregate counters.
func (r *Router) sendStats(ctx context.Context, operatorID int64) {
	st, err := r.db.GetStats(ctx)
	if err != nil {
		r.logger.Warn("stats query failed", "error", err)
		r.tellOperator(operatorID, "⚠️ Не вдалося завантажити статистику.")
		return
	}
	r.tellOperator(operatorID, fmt.Sprintf(`📊 Статистика:

👥 Клієнтів: %d
💬 Повідомлень всього: %d
📅 Повідомлень за добу: %d
🎁 Активних акцій: %d
⏳ У черзі зараз: %d
🗣 Активних чатів: %d`,
		st.Clients, st.Messages, st.MessagesToday, st.ActivePromos,
		len(r.live.Waiting()), len(r.live.Assignments())))
}

func formatLog(title string, entries []store.LogEntry) string {
	if len(entries) == 0 {
		return title + ":\n— нічого не знайдено."
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, e := range entries {
		dir := "⬅️"
		if e.Direction == store.DirOut {
			dir = "➡️"
		}
		fmt.Fprintf(&b, "\n%s [%s] клієнт %d: %s", dir, e.CreatedAt.Format("02.01 15:04"), e.ClientID, e.Text)
	}
	return b.String()
}

func parseClientID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
