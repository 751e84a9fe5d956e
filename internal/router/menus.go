// ABOUTME: Menu vocabulary, FAQ and catalog content, callback dispatcher
// ABOUTME: Every inline button press lands in the one handleCallback switch

package router

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/transport"
)

// Client menu button labels.
const (
	ButtonHome     = "🏠 Головне меню"
	ButtonCatalog  = "🛒 Каталог"
	ButtonFAQ      = "❓ FAQ"
	ButtonSite     = "📱 Сайт"
	ButtonContacts = "📞 Контакти"
	ButtonSearch   = "🔍 Пошук"
	ButtonPromos   = "🎁 Акції"
	ButtonManager  = "💬 Менеджер"
	ButtonProfile  = "👤 Профіль"
)

const siteURL = "https://magicair.com.ua"

func mainMenuKeyboard() transport.Keyboard {
	return transport.Reply(
		[]string{ButtonCatalog, ButtonFAQ},
		[]string{ButtonSite, ButtonContacts},
		[]string{ButtonSearch, ButtonPromos},
		[]string{ButtonManager, ButtonProfile},
	)
}

// showMainMenu greets the client back into the top-level menu.
func (r *Router) showMainMenu(clientID int64) {
	if _, err := r.send.SendText(clientID, "🏠 Головне меню. Чим можемо допомогти?", mainMenuKeyboard()); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
	r.live.SetSession(clientID, state.Session{Mode: state.ModeMenu})
}

// handleMenuButton dispatches the fixed client vocabulary. Returns false
// when the text is not a menu button.
func (r *Router) handleMenuButton(ctx context.Context, clientID int64, text string) bool {
	switch text {
	case ButtonCatalog:
		r.sendCatalog(clientID)
	case ButtonFAQ:
		r.sendFAQMenu(clientID)
	case ButtonSite:
		r.tell(clientID, "🌍 Наш сайт:\n👉 "+siteURL+"\n\n🛒 Тут можна переглянути повний каталог та оформити замовлення!")
	case ButtonContacts:
		r.sendContacts(clientID)
	case ButtonSearch:
		r.live.SetSession(clientID, state.Session{Mode: state.ModeAwaitingSearch})
		r.tell(clientID, "🔍 Напишіть, що шукаєте, і ми підберемо посилання на каталог.")
	case ButtonPromos:
		r.sendPromotions(ctx, clientID)
	case ButtonManager:
		r.requestManager(clientID)
	case ButtonProfile:
		r.sendProfile(ctx, clientID)
	default:
		return false
	}
	return true
}

// handleSearchQuery answers a pending catalog search with a deep link.
func (r *Router) handleSearchQuery(clientID int64, query string) {
	r.live.SetSession(clientID, state.Session{Mode: state.ModeMenu})
	link := siteURL + "/katalog/search/?q=" + url.QueryEscape(query)
	r.tell(clientID, fmt.Sprintf("🔍 Ось що знайшлося за запитом «%s»:\n👉 %s", query, link))
}

// managerTopics maps the pre-filter callback data to the topic label
// carried into the operator notice.
var managerTopics = map[string]string{
	"topic_price":    "💰 Питання про ціни",
	"topic_delivery": "🚚 Доставка та оплата",
	"topic_balloons": "🎈 Вибір кульок",
	"topic_event":    "🎉 Оформлення свята",
	"topic_urgent":   "🚨 Термінове питання",
	"topic_other":    "❓ Інше питання",
}

func topicMenuKeyboard() transport.Keyboard {
	return transport.Inline(
		[]transport.Button{transport.Btn("💰 Питання про ціни", "topic_price")},
		[]transport.Button{transport.Btn("🚚 Доставка та оплата", "topic_delivery")},
		[]transport.Button{transport.Btn("🎈 Вибір кульок", "topic_balloons")},
		[]transport.Button{transport.Btn("🎉 Оформлення свята", "topic_event")},
		[]transport.Button{transport.Btn("🚨 Термінове питання", "topic_urgent")},
		[]transport.Button{transport.Btn("❓ Інше питання", "topic_other")},
	)
}

// requestManager asks the client to pick a topic before queueing. Outside
// working hours the request is declined up front.
func (r *Router) requestManager(clientID int64) {
	if !r.cfg.WithinWorkingHours(r.now()) {
		r.tell(clientID, fmt.Sprintf(
			"🌙 Наразі ми не працюємо. Графік: %d:00-%d:00.\nНапишіть ваше питання — відповімо з початком робочого дня!",
			r.cfg.Hours.Start, r.cfg.Hours.End))
		return
	}

	if opID, ok := r.live.OperatorOf(clientID); ok {
		r.tell(clientID, "💬 Ви вже спілкуєтесь з менеджером "+r.cfg.OperatorName(opID)+".")
		return
	}
	if r.live.InQueue(clientID) {
		r.tell(clientID, "⏳ Ви вже в черзі. Менеджер приєднається найближчим часом!")
		return
	}

	if _, err := r.send.SendText(clientID,
		"💬 Щоб швидше вам допомогти, оберіть тему вашого питання:", topicMenuKeyboard()); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

// queueForManager enqueues the client and pings the free operators with
// the chosen topic attached. Reports whether the client was queued.
func (r *Router) queueForManager(clientID int64, topic string) bool {
	if opID, ok := r.live.OperatorOf(clientID); ok {
		r.tell(clientID, "💬 Ви вже спілкуєтесь з менеджером "+r.cfg.OperatorName(opID)+".")
		return false
	}
	if r.live.InQueue(clientID) {
		r.tell(clientID, "⏳ Ви вже в черзі. Менеджер приєднається найближчим часом!")
		return false
	}
	if err := r.live.Enqueue(clientID); err != nil {
		r.tell(clientID, "💬 Ви вже спілкуєтесь з менеджером.")
		return false
	}

	kb := transport.Inline([]transport.Button{
		transport.Btn("💬 Забрати клієнта", fmt.Sprintf("client_chat_%d", clientID)),
	})
	notice := fmt.Sprintf("🔔 Клієнт %d чекає на менеджера!\n📌 Тема: %s", clientID, topic)
	notified := 0
	for _, opID := range r.cfg.OperatorIDs() {
		if _, busy := r.live.ClientOf(opID); busy {
			continue
		}
		msgID, err := r.send.SendText(opID, notice, kb)
		if err != nil {
			r.logger.Warn("operator ping failed", "operator_id", opID, "error", err)
			continue
		}
		r.live.AddNotice(state.Notice{OperatorID: opID, ClientID: clientID, MessageID: msgID})
		notified++
	}

	r.logger.Info("manager requested", "client_id", clientID, "topic", topic, "operators_notified", notified)
	return true
}

// sendPromotions shows clients the active campaigns.
func (r *Router) sendPromotions(ctx context.Context, clientID int64) {
	promos, err := r.db.ActivePromotions(ctx)
	if err != nil {
		r.logger.Warn("promotions query failed", "error", err)
		r.tell(clientID, "Вибачте, не вдалося завантажити акції. Спробуйте пізніше.")
		return
	}
	if len(promos) == 0 {
		r.tell(clientID, "🎁 Наразі активних акцій немає. Слідкуйте за оновленнями!")
		return
	}
	var b strings.Builder
	b.WriteString("🎁 Активні акції:\n")
	for _, p := range promos {
		fmt.Fprintf(&b, "\n*%s*\n%s\n⏰ До %s\n", p.Title, p.Description, p.EndDate.Format("02.01.2006"))
	}
	r.tell(clientID, b.String())
}

// sendCatalog shows the category links.
func (r *Router) sendCatalog(clientID int64) {
	kb := transport.Inline(
		[]transport.Button{transport.URLBtn("🎈 Латексні кулі", siteURL+"/lateksnye-shary/")},
		[]transport.Button{transport.URLBtn("🔢 Фольговані цифри", siteURL+"/folhovani-tsyfry/")},
		[]transport.Button{transport.URLBtn("🦄 Фольговані фігури", siteURL+"/folgirovannye-figury/")},
		[]transport.Button{transport.URLBtn("💐 Набори кульок", siteURL+"/bukety-sharov/")},
		[]transport.Button{transport.URLBtn("🎁 Сюрприз-коробки", siteURL+"/surpriz-boksy/")},
		[]transport.Button{transport.URLBtn("📸 Фотозони", siteURL+"/fotozona/")},
	)
	if _, err := r.send.SendText(clientID, "🛒 Оберіть категорію:", kb); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

func (r *Router) sendContacts(clientID int64) {
	r.tell(clientID, `📞 Контакти MagicAir:

☎️ (063) 233-33-03

🏪 Наші магазини:
• Теремки, вул. Метрологічна 13 — видача замовлень 24/7
• Оболонь, вул. Героїв полку Азов 24/10 — 09:00-19:00

🚚 Доставка по Києву та області працює 24/7.`)
}

// faqSections maps callback data to the canned FAQ answers.
var faqSections = map[string]string{
	"faq_delivery": `🚚 Доставка та оплата

• Доставка по Києву та області 24/7, вартість за тарифами таксі.
• Самовивіз з магазинів Теремки (24/7) та Оболонь (09:00-19:00).
• Оплата: онлайн, за реквізитами або готівкою при самовивозі.
• Замовлення запускаються в роботу після повної оплати.`,

	"faq_balloons": `🎈 Про кулі та гелій

• Латексні кульки з обробкою Hi-Float літають від 5 до 20 днів.
• Фольговані кульки літають від 6 до 30 днів.
• Надуваємо гелієм і ваші кульки — ціна залежить від розміру.`,

	"faq_orders": `📅 Замовлення та терміни

• Замовлення приймаємо щодня, краще за 1-2 дні до події.
• Термінові замовлення можливі — уточнюйте у менеджера.
• Готові набори: від 695 грн. Сюрприз-коробки: від 745 грн.`,

	"faq_decoration": `🎁 Оформлення та декор

• Фотозони, композиції та гірлянди під ключ.
• Сюрприз-коробки з індивідуальним написом.
• Оформлення гендер-паті та інших свят.`,

	"faq_contacts": `📞 Контакти та режим роботи

☎️ (063) 233-33-03
• Теремки, вул. Метрологічна 13 — 24/7
• Оболонь, вул. Героїв полку Азов 24/10 — 09:00-19:00`,
}

func faqMenuKeyboard() transport.Keyboard {
	return transport.Inline(
		[]transport.Button{transport.Btn("🚚 Доставка та оплата", "faq_delivery")},
		[]transport.Button{transport.Btn("🎈 Про кулі та гелій", "faq_balloons")},
		[]transport.Button{transport.Btn("📅 Замовлення та терміни", "faq_orders")},
		[]transport.Button{transport.Btn("🎁 Оформлення та декор", "faq_decoration")},
		[]transport.Button{transport.Btn("📞 Контакти та режим роботи", "faq_contacts")},
	)
}

func (r *Router) sendFAQMenu(clientID int64) {
	if _, err := r.send.SendText(clientID, "❓ Часті питання — оберіть тему:", faqMenuKeyboard()); err != nil {
		r.logger.Warn("send failed", "chat_id", clientID, "error", err)
	}
}

// handleCallback is the single dispatcher for every inline-button press.
func (r *Router) handleCallback(ctx context.Context, cb transport.Callback) {
	defer func() {
		if err := r.send.AnswerCallback(cb.ID, ""); err != nil {
			r.logger.Debug("callback ack failed", "error", err)
		}
	}()

	if clientID, ok := strings.CutPrefix(cb.Data, "client_chat_"); ok {
		id, err := strconv.ParseInt(clientID, 10, 64)
		if err != nil {
			r.logger.Warn("malformed pickup callback", "data", cb.Data)
			return
		}
		r.pickup(ctx, cb.ChatID, id)
		return
	}

	if topic, ok := managerTopics[cb.Data]; ok {
		if r.queueForManager(cb.ChatID, topic) {
			if err := r.send.EditText(cb.ChatID, cb.MessageID,
				"⏳ Ваш запит передано менеджеру! Чекайте на відповідь."); err != nil {
				r.logger.Debug("topic menu edit failed", "error", err)
			}
		}
		return
	}

	if text, ok := faqSections[cb.Data]; ok {
		back := transport.Inline([]transport.Button{transport.Btn("⬅️ Назад до FAQ", "faq_back")})
		if err := r.send.EditText(cb.ChatID, cb.MessageID, text, back); err != nil {
			r.logger.Debug("faq edit failed", "error", err)
		}
		return
	}

	switch cb.Data {
	case "faq_back":
		if err := r.send.EditText(cb.ChatID, cb.MessageID, "❓ Часті питання — оберіть тему:", faqMenuKeyboard()); err != nil {
			r.logger.Debug("faq edit failed", "error", err)
		}
	case "profile_edit":
		r.startProfileWizard(cb.ChatID)
	case "profile_notif":
		r.toggleNotifications(ctx, cb.ChatID)
	default:
		r.logger.Debug("unknown callback", "data", cb.Data)
	}
}
