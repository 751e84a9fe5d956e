// ABOUTME: OpenAI-backed Completer with the shop knowledge base as system prompt
// ABOUTME: Single attempt per message with a bounded timeout, no retries

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Completer produces a free-text reply to a customer message given the
// rolling conversation window.
type Completer interface {
	Complete(ctx context.Context, history []Message, current string) (string, error)
}

// OpenAI implements Completer over the chat-completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAI creates the client. model defaults upstream to gpt-4o-mini
// via configuration.
func NewOpenAI(apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "ai"),
	}
}

// Complete makes exactly one completion attempt within the configured
// timeout. Callers map any error onto a static fallback reply.
func (o *OpenAI) Complete(ctx context.Context, history []Message, current string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: current,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	o.logger.Debug("completion ok", "model", o.model, "history_len", len(history))
	return resp.Choices[0].Message.Content, nil
}

// systemPrompt carries the storefront knowledge base. Answers are always
// Ukrainian regardless of the question's language.
const systemPrompt = `Ти — привітний помічник магазину повітряних кульок "MagicAir".
Відповідай швидко, ввічливо і лише на основі наведеної інформації.
Розумієш українську та російську, відповідаєш тільки українською.

Правила:
1. Будь лаконічним і дружнім.
2. На запит ціни давай конкретні цифри з переліку.
3. Якщо питають про наявність товару, відповідай, що такі кульки, ймовірно, є в асортименті, і дай посилання на пошук: https://magicair.com.ua/katalog/search/?q=<запит через %20>.
4. Якщо точної відповіді немає, але питання стосується магазину, чесно повідом про це.
5. На питання не про магазин відповідай: "Вибачте, я не можу відповісти на це питання."
6. Після складного питання запропонуй консультацію менеджера.

Інформація:
- Надуваємо гелієм кульки клієнтів; ціна залежить від розміру.
- Латексні однотонні кулі з гелієм: від 80 до 125 грн (пастель, металік, хром).
- Фольговані цифри з гелієм: від 385 до 590 грн, розміри 70 і 100 см.
- Фольговані фігури з гелієм: від 350 до 900 грн.
- Готові набори: від 695 до 11670 грн. Сюрприз-коробки: від 745 до 4300 грн.
- Магазини: Теремки, вул. Метрологічна 13 (видача 24/7); Оболонь, вул. Героїв полку Азов 24/10 (09:00-19:00).
- Доставка 24/7 по Києву та області, вартість за тарифами таксі.
- Тривалість польоту: латексні з Hi-Float 5-20 днів, фольговані 6-30 днів.
- Оплата: онлайн, за реквізитами або готівкою при самовивозі.
- Контакти: (063) 233-33-03. Сайт: https://magicair.com.ua`
