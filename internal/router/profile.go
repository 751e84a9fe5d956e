// ABOUTME: Customer profile display and the three-step profile wizard
// ABOUTME: Phone and birthday validation, 365-day birthday change lock

package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

var (
	phoneRe    = regexp.MustCompile(`^(\+380|380|0)?[0-9]{9}$`)
	birthdayRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
)

// birthdayLockPeriod guards against gaming birthday promotions by
// re-dating the profile.
const birthdayLockPeriod = 365 * 24 * time.Hour

// sendProfile shows the customer their stored profile with edit controls.
func (r *Router) sendProfile(ctx context.Context, clientID int64) {
	p, err := r.db.GetProfile(ctx, clientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("profile query failed", "client_id", clientID, "error", err)
		r.tell(clientID, "⚠️ Не вдалося завантажити профіль. Спробуйте пізніше.")
		return
	}

	notif := "увімкнені 🔔"
	if !p.Notifications && p.ClientID != 0 {
		notif = "вимкнені 🔕"
	}
	text := fmt.Sprintf(`👤 Ваш профіль:

Ім'я: %s
Телефон: %s
День народження: %s
Сповіщення: %s`,
		orDash(p.Name), orDash(p.Phone), orDash(p.Birthday), notif)

	kb := transport.Inline(
		[]transport.Button{transport.Btn("✏️ Заповнити профіль", "profile_edit")},
		[]transport.Button{transport.Btn("🔔 Сповіщення увімк/вимк", "profile_notif")},
	)
	if _, err := r.send.SendText(clientID, text, kb); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

// startProfileWizard begins the three-step profile form.
func (r *Router) startProfileWizard(clientID int64) {
	r.mu.Lock()
	r.profileDrafts[clientID] = &store.Profile{ClientID: clientID, Notifications: true}
	r.mu.Unlock()

	r.live.SetSession(clientID, state.Session{Mode: state.ModeProfileWizard, Step: state.StepProfileName})
	r.tell(clientID, "✏️ Крок 1/3: як вас звати?")
}

// handleProfileStep advances the wizard. Invalid input re-prompts with
// specific guidance and the step does not advance.
func (r *Router) handleProfileStep(ctx context.Context, clientID int64, step state.Step, text string) {
	r.mu.Lock()
	draft := r.profileDrafts[clientID]
	r.mu.Unlock()
	if draft == nil {
		r.live.SetSession(clientID, state.Session{Mode: state.ModeIdle})
		return
	}
	text = strings.TrimSpace(text)

	switch step {
	case state.StepProfileName:
		if text == "" || len([]rune(text)) > 64 {
			r.tell(clientID, "⚠️ Введіть, будь ласка, ім'я (до 64 символів).")
			return
		}
		draft.Name = text
		r.live.SetSession(clientID, state.Session{Mode: state.ModeProfileWizard, Step: state.StepProfilePhone})
		r.tell(clientID, "Крок 2/3: ваш номер телефону (наприклад, 0671234567).")

	case state.StepProfilePhone:
		normalized := strings.ReplaceAll(strings.ReplaceAll(text, " ", ""), "-", "")
		if !phoneRe.MatchString(normalized) {
			r.tell(clientID, "⚠️ Невірний формат. Приклади: +380671234567, 0671234567.")
			return
		}
		draft.Phone = normalized
		r.live.SetSession(clientID, state.Session{Mode: state.ModeProfileWizard, Step: state.StepProfileBirthday})
		r.tell(clientID, "Крок 3/3: дата народження у форматі ДД.ММ.РРРР.")

	case state.StepProfileBirthday:
		if err := r.acceptBirthday(ctx, clientID, draft, text); err != nil {
			r.tell(clientID, err.Error())
			return
		}
		r.finishProfileWizard(ctx, clientID, draft)
	}
}

// acceptBirthday validates the date and enforces the change lock against
// the previously stored profile.
func (r *Router) acceptBirthday(ctx context.Context, clientID int64, draft *store.Profile, text string) error {
	if !birthdayRe.MatchString(text) {
		return errors.New("⚠️ Невірний формат. Приклад: 14.03.1990.")
	}
	parsed, err := time.Parse("02.01.2006", text)
	if err != nil || parsed.After(r.now()) {
		return errors.New("⚠️ Такої дати не існує. Перевірте та спробуйте ще раз.")
	}

	prev, err := r.db.GetProfile(ctx, clientID)
	if err == nil && prev.Birthday != "" && prev.Birthday != text {
		if r.now().Sub(prev.BirthdayChangedAt) < birthdayLockPeriod {
			return errors.New("⚠️ Дату народження можна змінювати не частіше ніж раз на рік. Попередня дата збережена.")
		}
	}

	draft.Birthday = text
	if err != nil || prev.Birthday != text {
		draft.BirthdayChangedAt = r.now()
	} else {
		draft.BirthdayChangedAt = prev.BirthdayChangedAt
	}
	return nil
}

func (r *Router) finishProfileWizard(ctx context.Context, clientID int64, draft *store.Profile) {
	draft.LastActivity = r.now()
	if err := r.db.UpsertProfile(ctx, *draft); err != nil {
		r.logger.Warn("profile save failed", "client_id", clientID, "error", err)
		r.tell(clientID, "⚠️ Не вдалося зберегти профіль. Спробуйте пізніше.")
	} else {
		r.tell(clientID, fmt.Sprintf("✅ Профіль збережено!\n\nІм'я: %s\nТелефон: %s\nДень народження: %s",
			draft.Name, draft.Phone, draft.Birthday))
	}

	r.mu.Lock()
	delete(r.profileDrafts, clientID)
	r.mu.Unlock()
	r.live.SetSession(clientID, state.Session{Mode: state.ModeMenu})
}

// toggleNotifications flips the customer's opt-in flag.
func (r *Router) toggleNotifications(ctx context.Context, clientID int64) {
	p, err := r.db.GetProfile(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		p = store.Profile{ClientID: clientID, Notifications: true}
	} else if err != nil {
		r.logger.Warn("profile query failed", "client_id", clientID, "error", err)
		return
	}

	p.Notifications = !p.Notifications
	if err := r.db.UpsertProfile(ctx, p); err != nil {
		r.logger.Warn("profile save failed", "client_id", clientID, "error", err)
		return
	}
	if p.Notifications {
		r.tell(clientID, "🔔 Сповіщення увімкнені.")
	} else {
		r.tell(clientID, "🔕 Сповіщення вимкнені.")
	}
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
