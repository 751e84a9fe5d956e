// ABOUTME: Keyword heuristics for intent, completeness and gratitude detection
// ABOUTME: Pattern tables are plain data so the vocabulary can evolve without touching logic

package order

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Intent is the coarse classification of a free-text customer message.
type Intent int

const (
	IntentNone Intent = iota
	IntentFAQ
	IntentOrder
)

// FAQ question patterns. A match here always wins over order intent: a
// customer asking how much delivery costs is reading, not ordering.
var faqPhrases = []string{
	"скільки коштує",
	"скільки буде коштувати",
	"яка ціна",
	"яка вартість",
	"ціна на",
	"як довго літа",
	"скільки літа",
	"чи довго літа",
	"як оформити",
	"як зробити замовлення",
	"як замовити",
	"чи працюєте",
	"коли ви працюєте",
	"графік роботи",
	"режим роботи",
	"де ви знаходитесь",
	"яка адреса",
	"чи є доставка",
	"скільки коштує доставка",
	"як оплатити",
	"які способи оплати",
	"чи можна оплатити",
}

// Order-intent vocabulary: action stems plus product stems. Stems rather
// than full words so inflected forms match without a morphology pass.
var (
	orderVerbs = []string{
		"замов", "куп", "придба", "хочу", "потрібн", "треба",
		"оформ", "візьм", "забронюв", "зробіть",
	}
	productNouns = []string{
		"куль", "шар", "фольг", "латекс", "цифр", "букет",
		"композиц", "гелі", "бокс", "фотозон", "гірлянд", "банер",
	}
)

// Quantity-as-words, for customers who spell the number out.
var quantityWords = []string{
	"одну", "один", "дві", "два", "три", "чотири",
	"п'ять", "пʼять", "шість", "сім", "вісім",
	"дев'ять", "девʼять", "десять", "пару", "кілька", "декілька",
}

// Date and time patterns are stripped from the text before the bare-digit
// quantity check so "25.12" or "14:30" is never mistaken for a count.
var (
	dateRe = regexp.MustCompile(`\d{1,2}\.\d{1,2}(\.\d{2,4})?`)
	timeRe = regexp.MustCompile(`\d{1,2}:\d{2}`)

	quantityRe = regexp.MustCompile(`\d+`)
)

var dateWords = []string{
	"сьогодні", "завтра", "післязавтра", "зранку", "вранці",
	"вдень", "ввечері", "на вихідних",
	"понеділок", "вівторок", "середу", "четвер", "п'ятницю", "пʼятницю",
	"суботу", "неділю",
}

var locationWords = []string{
	"самовивіз", "самовивоз", "заберу", "заберемо",
	"доставк", "достав", "привезти", "привезіть",
	"адрес", "вул.", "вулиц",
	"теремки", "оболонь", "позняки", "троєщин", "хрещатик", "метро",
}

var gratitudeWords = []string{
	"дякую", "дякуємо", "спасибі", "вдячний", "вдячна", "thank",
}

// ClassifyIntent applies the keyword heuristic to a customer message.
// FAQ patterns take strict precedence over order patterns.
func ClassifyIntent(text string) Intent {
	t := strings.ToLower(text)

	if containsAny(t, faqPhrases) {
		return IntentFAQ
	}

	hasProduct := containsAny(t, productNouns)
	if !hasProduct {
		return IntentNone
	}
	if containsAny(t, orderVerbs) {
		return IntentOrder
	}
	if hasQuantity(t) {
		return IntentOrder
	}
	return IntentNone
}

// IsGratitude reports whether the message is a short thank-you that
// warrants a canned acknowledgment instead of further processing. Long
// messages never qualify even if a gratitude word appears in them.
func IsGratitude(text string) bool {
	if utf8.RuneCountInString(text) > 40 {
		return false
	}
	return containsAny(strings.ToLower(text), gratitudeWords)
}

// Signals are the four completeness dimensions of an order message.
type Signals struct {
	Quantity bool
	Product  bool
	When     bool
	Where    bool
}

// ReadySignals is how many dimensions a draft needs before it is Ready.
const ReadySignals = 2

// Count returns how many signals are present.
func (s Signals) Count() int {
	n := 0
	for _, b := range []bool{s.Quantity, s.Product, s.When, s.Where} {
		if b {
			n++
		}
	}
	return n
}

// Missing returns customer-facing labels for the absent signals, in a
// fixed order, so the clarification prompt enumerates exactly what is
// still needed.
func (s Signals) Missing() []string {
	var out []string
	if !s.Quantity {
		out = append(out, "кількість")
	}
	if !s.Product {
		out = append(out, "які саме товари вас цікавлять")
	}
	if !s.When {
		out = append(out, "дату або час")
	}
	if !s.Where {
		out = append(out, "доставка чи самовивіз")
	}
	return out
}

// DetectSignals extracts the completeness signals from a message.
func DetectSignals(text string) Signals {
	t := strings.ToLower(text)

	var s Signals

	// Dates first, then strip them so their digits don't count as quantity.
	stripped := t
	if dateRe.MatchString(stripped) {
		s.When = true
		stripped = dateRe.ReplaceAllString(stripped, " ")
	}
	if timeRe.MatchString(stripped) {
		s.When = true
		stripped = timeRe.ReplaceAllString(stripped, " ")
	}
	if containsAny(t, dateWords) {
		s.When = true
	}

	if quantityRe.MatchString(stripped) || containsAny(t, quantityWords) {
		s.Quantity = true
	}
	if containsAny(t, productNouns) {
		s.Product = true
	}
	if containsAny(t, locationWords) {
		s.Where = true
	}
	return s
}

// hasQuantity checks for a count, ignoring digits that belong to a date
// or time expression.
func hasQuantity(text string) bool {
	stripped := dateRe.ReplaceAllString(text, " ")
	stripped = timeRe.ReplaceAllString(stripped, " ")
	return quantityRe.MatchString(stripped) || containsAny(text, quantityWords)
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
