// ABOUTME: Router dispatch tests with a recording fake transport
// ABOUTME: Covers relay, home teardown, pickup protocol, rate limiting, responder fallback

package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicair/chatdesk/internal/ai"
	"github.com/magicair/chatdesk/internal/config"
	"github.com/magicair/chatdesk/internal/order"
	"github.com/magicair/chatdesk/internal/sched"
	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

type sentMsg struct {
	chatID int64
	text   string
}

// fakeSender records outbound traffic.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMsg
	deleted []sentMsg // chatID + messageID reused in text slot
	nextID  int
}

func (f *fakeSender) SendText(chatID int64, text string, kb ...transport.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMsg{chatID, text})
	return f.nextID, nil
}

func (f *fakeSender) SendImage(chatID int64, fileID, caption string, kb ...transport.Keyboard) (int, error) {
	return f.SendText(chatID, "[photo] "+caption)
}

func (f *fakeSender) EditText(chatID int64, messageID int, text string, kb ...transport.Keyboard) error {
	_, _ = f.SendText(chatID, "[edit] "+text)
	return nil
}

func (f *fakeSender) DeleteMessage(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sentMsg{chatID: chatID})
	return nil
}

func (f *fakeSender) AnswerCallback(callbackID, text string) error { return nil }

// to returns every message sent to one chat.
func (f *fakeSender) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeSender) last(chatID int64) string {
	msgs := f.to(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// fakeLimiter lets everything through unless blocked.
type fakeLimiter struct{ blocked bool }

func (f *fakeLimiter) Allow(int64) (bool, time.Duration) {
	if f.blocked {
		return false, 5 * time.Minute
	}
	return true, 0
}

// fakeCompleter answers with a fixed reply or error.
type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, history []ai.Message, current string) (string, error) {
	return f.reply, f.err
}

type fixture struct {
	router    *Router
	live      *state.Memory
	db        *store.SQLiteStore
	sender    *fakeSender
	limiter   *fakeLimiter
	completer *fakeCompleter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Operators: []config.Operator{
			{ID: 10, Name: "Олег"},
			{ID: 20, Name: "Ірина"},
		},
		Hours:  config.HoursConfig{Start: 0, End: 24, Timezone: "Europe/Kyiv"},
		Orders: config.OrdersConfig{AutoFinalizeDelay: time.Hour},
	}

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	live := state.NewMemory(nil)
	timers := sched.New(nil)
	t.Cleanup(timers.Close)

	sender := &fakeSender{}
	limiter := &fakeLimiter{}
	completer := &fakeCompleter{reply: "відповідь"}
	history := ai.NewHistory(10, 5*time.Hour)

	r := New(cfg, live, db, sender, limiter, timers, completer, history, nil)
	return &fixture{router: r, live: live, db: db, sender: sender, limiter: limiter, completer: completer}
}

func clientText(chatID int64, text string) transport.Update {
	return transport.Update{ChatID: chatID, Text: text}
}

func TestRouter_RateLimitedClientIsRejected(t *testing.T) {
	fx := newFixture(t)
	fx.limiter.blocked = true

	fx.router.HandleUpdate(context.Background(), clientText(100, "хочу замовити кульки"))

	assert.Contains(t, fx.sender.last(100), "Забагато повідомлень")
	_, hasDraft := fx.live.Draft(100)
	assert.False(t, hasDraft, "no state mutation for a throttled sender")
}

func TestRouter_OrderIntentStartsDraft(t *testing.T) {
	fx := newFixture(t)

	fx.router.HandleUpdate(context.Background(), clientText(100, "5 латексних кульок, завтра"))

	d, ok := fx.live.Draft(100)
	require.True(t, ok)
	assert.Equal(t, state.DraftReady, d.Status)
	assert.Contains(t, fx.sender.last(100), order.ButtonSend)
}

func TestRouter_FAQQuestionNeverStartsDraft(t *testing.T) {
	fx := newFixture(t)

	fx.router.HandleUpdate(context.Background(), clientText(100, "Скільки коштує доставка кульок?"))

	_, ok := fx.live.Draft(100)
	assert.False(t, ok, "FAQ classification wins over order intent")
	assert.Equal(t, "відповідь", lastLine(fx.sender.last(100)))
}

func TestRouter_SendButtonFinalizesDraft(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, "5 латексних кульок, завтра"))
	fx.router.HandleUpdate(ctx, clientText(100, order.ButtonSend))

	d, _ := fx.live.Draft(100)
	assert.Equal(t, state.DraftSent, d.Status)
	assert.True(t, fx.live.InQueue(100))

	// Another order attempt while the first is pending.
	fx.router.HandleUpdate(ctx, clientText(100, "ще 3 фольговані кульки завтра"))
	assert.Equal(t, order.MsgAwaitOperator, fx.sender.last(100))
}

func TestRouter_HomeAbortsDraftSilently(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, "5 латексних кульок, завтра"))
	fx.router.HandleUpdate(ctx, clientText(100, ButtonHome))

	_, ok := fx.live.Draft(100)
	assert.False(t, ok)
	assert.Empty(t, fx.sender.to(10), "no operator fan-out on silent discard")
	assert.Contains(t, fx.sender.last(100), "Головне меню")
}

func TestRouter_GratitudeInterrupt(t *testing.T) {
	fx := newFixture(t)

	fx.router.HandleUpdate(context.Background(), clientText(100, "Дякую!"))

	assert.Contains(t, fx.sender.last(100), "Будь ласка")
}

func TestRouter_ManagerChatRelay(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.live.Enqueue(100))
	require.NoError(t, fx.live.Pickup(10, 100))

	fx.router.HandleUpdate(ctx, clientText(100, "добрий день"))
	assert.Contains(t, fx.sender.last(10), "добрий день")

	// Operator free text relays back.
	fx.router.HandleUpdate(ctx, clientText(10, "вітаю, чим допомогти?"))
	assert.Contains(t, fx.sender.last(100), "вітаю, чим допомогти?")
	assert.Contains(t, fx.sender.last(100), "Олег")
}

func TestRouter_BrokenMirrorSelfHeals(t *testing.T) {
	fx := newFixture(t)

	// Session says manager chat, assignment table disagrees.
	fx.live.SetSession(100, state.Session{Mode: state.ModeInManagerChat, OperatorID: 10})

	fx.router.HandleUpdate(context.Background(), clientText(100, "ви тут?"))

	s, _ := fx.live.Session(100)
	assert.Equal(t, state.ModeIdle, s.Mode)
	assert.Contains(t, fx.sender.last(100), "Зв'язок з менеджером втрачено")
	assert.Empty(t, fx.sender.to(10))
}

func TestRouter_HomeEndsManagerChat(t *testing.T) {
	// Scenario: a client in a manager chat goes home. Assignment torn
	// down both sides, operator notified, draft lock cleared.
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.live.PutDraft(100, state.Draft{Status: state.DraftSent, Locked: true}))
	require.NoError(t, fx.live.Enqueue(100))
	require.NoError(t, fx.live.Pickup(10, 100))

	fx.router.HandleUpdate(ctx, clientText(100, ButtonHome))

	_, assigned := fx.live.ClientOf(10)
	assert.False(t, assigned)
	_, assigned = fx.live.OperatorOf(100)
	assert.False(t, assigned)

	s, _ := fx.live.Session(100)
	assert.Equal(t, state.ModeMenu, s.Mode, "client lands on the main menu")

	assert.Contains(t, strings.Join(fx.sender.to(10), "\n"), "Клієнт завершив чат")

	_, hasDraft := fx.live.Draft(100)
	assert.False(t, hasDraft, "sent draft is discarded by the explicit reset")
}

func TestRouter_PickupProtocol(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.live.Enqueue(100))
	fx.live.AddNotice(state.Notice{OperatorID: 20, ClientID: 100, MessageID: 77})

	cb := transport.Callback{ID: "cb", Data: "client_chat_100", ChatID: 10}
	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 10, Callback: &cb})

	op, ok := fx.live.OperatorOf(100)
	require.True(t, ok)
	assert.Equal(t, int64(10), op)

	assert.Contains(t, fx.sender.last(100), "Олег", "client greeted with the operator identity")
	assert.Len(t, fx.sender.deleted, 1, "outstanding notices retracted")

	// Losing operator presses the stale button.
	cb2 := transport.Callback{ID: "cb2", Data: "client_chat_100", ChatID: 20}
	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 20, Callback: &cb2})
	assert.Contains(t, fx.sender.last(20), "недоступний")

	// Winner re-presses their own button.
	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 10, Callback: &cb})
	assert.Contains(t, fx.sender.last(10), "вже спілкуєтесь")
}

func TestRouter_PickupWhileBusy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.live.Enqueue(100))
	require.NoError(t, fx.live.Enqueue(200))
	require.NoError(t, fx.live.Pickup(10, 100))

	cb := transport.Callback{ID: "cb", Data: "client_chat_200", ChatID: 10}
	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 10, Callback: &cb})

	assert.Contains(t, fx.sender.last(10), "завершіть поточний чат")
	assert.True(t, fx.live.InQueue(200), "target stays waiting")
}

func TestRouter_EndChat(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.live.Enqueue(100))
	require.NoError(t, fx.live.Pickup(10, 100))

	fx.router.HandleUpdate(ctx, clientText(10, ButtonEndChat))

	_, assigned := fx.live.ClientOf(10)
	assert.False(t, assigned)
	assert.Contains(t, fx.sender.last(100), "Менеджер завершив чат")

	s, _ := fx.live.Session(100)
	assert.Equal(t, state.ModeIdle, s.Mode)
}

func TestRouter_SearchFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, ButtonSearch))
	s, _ := fx.live.Session(100)
	require.Equal(t, state.ModeAwaitingSearch, s.Mode)

	fx.router.HandleUpdate(ctx, clientText(100, "людина павук"))
	last := fx.sender.last(100)
	assert.Contains(t, last, "katalog/search")
	assert.Contains(t, last, "%D0%BB") // query is URL-escaped

	s, _ = fx.live.Session(100)
	assert.Equal(t, state.ModeMenu, s.Mode)
}

func TestRouter_ResponderFallback(t *testing.T) {
	fx := newFixture(t)
	fx.completer.err = errors.New("timeout")

	fx.router.HandleUpdate(context.Background(), clientText(100, "розкажіть щось"))

	assert.Equal(t, fallbackReply, fx.sender.last(100))
}

func TestRouter_ResponderGreetsAfterSilence(t *testing.T) {
	fx := newFixture(t)

	fx.router.HandleUpdate(context.Background(), clientText(100, "що у вас є?"))
	first := fx.sender.last(100)
	assert.Contains(t, first, "Привіт")

	fx.router.HandleUpdate(context.Background(), clientText(100, "а ще?"))
	second := fx.sender.last(100)
	assert.NotContains(t, second, "Привіт", "no repeated greeting within the threshold")
}

func TestRouter_ManagerRequestShowsTopicsThenQueues(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Operator 10 is busy elsewhere, only 20 should be pinged.
	require.NoError(t, fx.live.Enqueue(300))
	require.NoError(t, fx.live.Pickup(10, 300))

	fx.router.HandleUpdate(ctx, clientText(100, ButtonManager))
	assert.False(t, fx.live.InQueue(100), "queueing waits for the topic choice")
	assert.Contains(t, fx.sender.last(100), "оберіть тему")

	pressCallback(fx, 100, "topic_delivery")

	assert.True(t, fx.live.InQueue(100))
	ping := fx.sender.last(20)
	assert.Contains(t, ping, "чекає на менеджера")
	assert.Contains(t, ping, "Доставка та оплата", "notice carries the chosen topic")
	assert.Len(t, fx.live.TakeNotices(100), 1, "busy operator is not pinged")
}

func TestRouter_RepeatManagerRequestDoesNotRePing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, ButtonManager))
	pressCallback(fx, 100, "topic_other")
	require.True(t, fx.live.InQueue(100))
	pinged := len(fx.sender.to(10)) + len(fx.sender.to(20))

	// Pressing the menu button again while already queued short-circuits.
	fx.router.HandleUpdate(ctx, clientText(100, ButtonManager))
	assert.Contains(t, fx.sender.last(100), "вже в черзі")
	assert.Equal(t, pinged, len(fx.sender.to(10))+len(fx.sender.to(20)), "no duplicate operator pings")

	// A stale topic press is equally inert.
	pressCallback(fx, 100, "topic_other")
	assert.Equal(t, pinged, len(fx.sender.to(10))+len(fx.sender.to(20)))
}

func TestRouter_PhotoDuringLiveDraftKeepsDraft(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, "хочу кульки"))
	before := len(fx.sender.to(100))

	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 100, PhotoFileID: "file123"})

	d, ok := fx.live.Draft(100)
	require.True(t, ok)
	assert.Equal(t, "хочу кульки", d.Primary, "the collected text survives the photo")
	assert.Equal(t, "file123", d.Attachment)
	assert.Greater(t, len(fx.sender.to(100)), before, "the client always gets a reply")
}

func TestRouter_PhotoDuringReadyDraftIsNotDropped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, "5 латексних кульок, завтра"))
	d, _ := fx.live.Draft(100)
	require.Equal(t, state.DraftReady, d.Status)

	fx.router.HandleUpdate(ctx, transport.Update{ChatID: 100, PhotoFileID: "file123"})

	d, _ = fx.live.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status)
	assert.Equal(t, "5 латексних кульок, завтра", d.Primary)
	assert.Contains(t, fx.sender.last(100), order.ButtonSend, "reply offers the send control")

	// The finalized summary carries the attached photo.
	fx.router.HandleUpdate(ctx, clientText(100, order.ButtonSend))
	assert.Contains(t, strings.Join(fx.sender.to(10), "\n"), "[photo]")
}

func TestRouter_Sweep(t *testing.T) {
	fx := newFixture(t)

	// Stale assignment: session was reset but the table still pairs them.
	require.NoError(t, fx.live.Enqueue(100))
	require.NoError(t, fx.live.Pickup(10, 100))
	fx.live.SetSession(100, state.Session{Mode: state.ModeIdle})

	// Stranded session: manager-chat mode with no assignment behind it.
	fx.live.SetSession(200, state.Session{Mode: state.ModeInManagerChat, OperatorID: 20})

	healed := fx.router.Sweep()
	assert.Equal(t, 2, healed)

	_, assigned := fx.live.ClientOf(10)
	assert.False(t, assigned)
	s, _ := fx.live.Session(200)
	assert.Equal(t, state.ModeIdle, s.Mode)

	assert.Zero(t, fx.router.Sweep(), "second sweep finds a consistent state")
}

func TestRouter_InboundIsLogged(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.HandleUpdate(ctx, clientText(100, "добрий день"))

	entries, err := fx.db.ClientHistory(ctx, 100, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "добрий день", entries[0].Text)
	assert.Equal(t, store.DirIn, entries[0].Direction)
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return lines[len(lines)-1]
}
