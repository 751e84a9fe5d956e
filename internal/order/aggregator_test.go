// ABOUTME: Tests for the order draft state machine
// ABOUTME: Covers ready-on-arrival, photo captions, auto-finalize and idempotent fan-out

package order

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicair/chatdesk/internal/sched"
	"github.com/magicair/chatdesk/internal/state"
)

// mockNotifier records aggregator output for assertions.
type mockNotifier struct {
	mu       sync.Mutex
	told     []string
	offered  []string
	notices  []Summary
	noticeOp []int64
	nextID   int
	failFor  map[int64]bool
}

func (m *mockNotifier) TellClient(clientID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.told = append(m.told, text)
}

func (m *mockNotifier) OfferSend(clientID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offered = append(m.offered, text)
}

func (m *mockNotifier) NotifyOperator(operatorID int64, s Summary) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[operatorID] {
		return 0, errors.New("send failed")
	}
	m.nextID++
	m.notices = append(m.notices, s)
	m.noticeOp = append(m.noticeOp, operatorID)
	return m.nextID, nil
}

func (m *mockNotifier) noticeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

func newTestAggregator(t *testing.T, delay time.Duration, operators ...int64) (*Aggregator, *state.Memory, *mockNotifier) {
	t.Helper()
	store := state.NewMemory(nil)
	timers := sched.New(nil)
	t.Cleanup(timers.Close)
	notify := &mockNotifier{failFor: make(map[int64]bool)}
	if len(operators) == 0 {
		operators = []int64{10, 20}
	}
	return New(store, timers, notify, operators, delay, nil), store, notify
}

func TestAggregator_CompleteMessageIsReady(t *testing.T) {
	// Scenario: quantity + type + date in one message goes straight to
	// Ready and the reply offers immediate send.
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "5 латексних кульок, завтра")

	d, ok := store.Draft(100)
	require.True(t, ok)
	assert.Equal(t, state.DraftReady, d.Status)

	require.Len(t, notify.offered, 1)
	assert.Contains(t, notify.offered[0], ButtonSend)

	s, _ := store.Session(100)
	assert.Equal(t, state.ModeOrderCollecting, s.Mode)
}

func TestAggregator_IncompleteMessageEnumeratesMissing(t *testing.T) {
	a, _, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "хочу замовити кульки")

	require.Len(t, notify.offered, 1)
	reply := notify.offered[0]
	assert.Contains(t, reply, "кількість")
	assert.Contains(t, reply, "дату або час")
	assert.NotContains(t, reply, "які саме товари")
}

func TestAggregator_ClarificationPromotesToReady(t *testing.T) {
	a, store, _ := newTestAggregator(t, time.Hour)

	a.StartText(100, "хочу замовити кульки")
	d, _ := store.Draft(100)
	require.Equal(t, state.DraftCollecting, d.Status)

	a.AddClarification(100, "10 штук, на завтра")

	d, _ = store.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status)
	assert.Equal(t, []string{"10 штук, на завтра"}, d.Clarifications)
}

func TestAggregator_PhotoCaptionFlow(t *testing.T) {
	// Scenario: captionless photo starts Collecting; the first follow-up
	// becomes the caption; a second pre-send follow-up is rejected.
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartImage(100, "file-abc", "")
	d, _ := store.Draft(100)
	require.Equal(t, state.DraftCollecting, d.Status)
	require.Len(t, notify.told, 1)

	a.AddClarification(100, "такі самі кульки, 10 штук")
	d, _ = store.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status)
	assert.Equal(t, "такі самі кульки, 10 штук", d.Caption)

	a.AddClarification(100, "і ще стрічки")
	d, _ = store.Draft(100)
	assert.Equal(t, "такі самі кульки, 10 штук", d.Caption, "second clarification is rejected")
	require.NotEmpty(t, notify.offered)
	assert.Contains(t, notify.offered[len(notify.offered)-1], ButtonSend)
}

func TestAggregator_PhotoWithCaptionIsReady(t *testing.T) {
	a, store, _ := newTestAggregator(t, time.Hour)

	a.StartImage(100, "file-abc", "хочу таку композицію на суботу")
	d, _ := store.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status)
}

func TestAggregator_AddImagePreservesTextDraft(t *testing.T) {
	// Scenario: a photo arrives mid-collection. The collected text must
	// survive; the photo rides along as an attachment.
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "хочу замовити кульки")
	a.AddImage(100, "file-abc", "")

	d, ok := store.Draft(100)
	require.True(t, ok)
	assert.Equal(t, "хочу замовити кульки", d.Primary)
	assert.Equal(t, "file-abc", d.Attachment)
	assert.Equal(t, state.DraftCollecting, d.Status)

	require.Len(t, notify.offered, 2)
	assert.Contains(t, notify.offered[1], ButtonSend, "the client is always answered")
}

func TestAggregator_AddImageCaptionCountsAsClarification(t *testing.T) {
	a, store, _ := newTestAggregator(t, time.Hour)

	a.StartText(100, "хочу замовити кульки")
	a.AddImage(100, "file-abc", "10 штук на завтра")

	d, _ := store.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status, "caption signals promote the draft")
	assert.Equal(t, []string{"10 штук на завтра"}, d.Clarifications)
	assert.Equal(t, "file-abc", d.Attachment)
}

func TestAggregator_AddImageOnReadyDraftReplies(t *testing.T) {
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "5 латексних кульок, завтра")
	d, _ := store.Draft(100)
	require.Equal(t, state.DraftReady, d.Status)

	a.AddImage(100, "file-abc", "")

	d, _ = store.Draft(100)
	assert.Equal(t, state.DraftReady, d.Status)
	assert.Equal(t, "5 латексних кульок, завтра", d.Primary)
	require.Len(t, notify.offered, 2)
	assert.Contains(t, notify.offered[1], ButtonSend)
}

func TestAggregator_SecondPhotoOnImageDraftNudgesSend(t *testing.T) {
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartImage(100, "file-abc", "таку композицію")
	a.AddImage(100, "file-def", "")

	d, _ := store.Draft(100)
	assert.Equal(t, "file-abc", d.Primary, "the original image is kept")
	require.NotEmpty(t, notify.offered)
	assert.Contains(t, notify.offered[len(notify.offered)-1], ButtonSend)
}

func TestAggregator_FinalizeCarriesAttachment(t *testing.T) {
	a, _, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "5 латексних кульок, завтра")
	a.AddImage(100, "file-abc", "")
	a.Finalize(100)

	require.NotEmpty(t, notify.notices)
	assert.Equal(t, "file-abc", notify.notices[0].ImageFileID)
	assert.Contains(t, notify.notices[0].Text, "5 латексних кульок")
}

func TestAggregator_Finalize(t *testing.T) {
	a, store, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "5 латексних кульок, завтра")
	a.Finalize(100)

	d, _ := store.Draft(100)
	assert.Equal(t, state.DraftSent, d.Status)
	assert.True(t, d.Locked)

	// Both operators are unassigned, both get the notice.
	assert.Equal(t, 2, notify.noticeCount())
	assert.False(t, notify.notices[0].Queued)
	assert.Contains(t, notify.notices[0].Text, "5 латексних кульок")

	assert.True(t, store.InQueue(100))
	assert.Len(t, store.TakeNotices(100), 2)

	s, _ := store.Session(100)
	assert.Equal(t, state.ModeIdle, s.Mode)
}

func TestAggregator_FinalizeIdempotent(t *testing.T) {
	a, _, notify := newTestAggregator(t, time.Hour)

	a.StartText(100, "5 латексних кульок, завтра")
	a.Finalize(100)
	a.Finalize(100)

	assert.Equal(t, 2, notify.noticeCount(), "second finalize must not fan out again")
}

func TestAggregator_FinalizeQueuedWhenAllBusy(t *testing.T) {
	a, store, notify := newTestAggregator(t, time.Hour)

	// Tie both operators up.
	require.NoError(t, store.Enqueue(200))
	require.NoError(t, store.Enqueue(300))
	require.NoError(t, store.Pickup(10, 200))
	require.NoError(t, store.Pickup(20, 300))

	a.StartText(100, "5 латексних кульок, завтра")
	a.Finalize(100)

	assert.Equal(t, 2, notify.noticeCount(), "falls back to every operator")
	assert.True(t, notify.notices[0].Queued)
}

func TestAggregator_FinalizePartialFanoutFailure(t *testing.T) {
	a, store, notify := newTestAggregator(t, time.Hour)
	notify.failFor[10] = true

	a.StartText(100, "5 латексних кульок, завтра")
	a.Finalize(100)

	assert.Equal(t, 1, notify.noticeCount())
	assert.Len(t, store.TakeNotices(100), 1, "only the delivered notice is recorded")
	assert.True(t, store.InQueue(100), "a failed send never blocks the queue add")
}

func TestAggregator_FinalizeCarriesImage(t *testing.T) {
	a, _, notify := newTestAggregator(t, time.Hour)

	a.StartImage(100, "file-abc", "таку композицію")
	a.Finalize(100)

	require.NotEmpty(t, notify.notices)
	assert.Equal(t, "file-abc", notify.notices[0].ImageFileID)
	assert.Contains(t, notify.notices[0].Text, "таку композицію")
}

func TestAggregator_AutoFinalize(t *testing.T) {
	// Scenario: a draft sits quiet past the delay and finalizes exactly once.
	a, store, notify := newTestAggregator(t, 30*time.Millisecond)

	a.StartText(100, "хочу замовити кульки")

	require.Eventually(t, func() bool {
		d, ok := store.Draft(100)
		return ok && d.Status == state.DraftSent
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, notify.noticeCount(), "one fan-out per operator, once")
}

func TestAggregator_ClarificationRearmsTimer(t *testing.T) {
	a, store, _ := newTestAggregator(t, 60*time.Millisecond)

	a.StartText(100, "хочу замовити кульки")
	time.Sleep(35 * time.Millisecond)
	a.AddClarification(100, "червоні")
	time.Sleep(35 * time.Millisecond)

	// 70ms after start but only 35ms after the clarification: still live.
	d, _ := store.Draft(100)
	assert.NotEqual(t, state.DraftSent, d.Status, "clarification re-arms the quiet timer")

	require.Eventually(t, func() bool {
		d, _ := store.Draft(100)
		return d.Status == state.DraftSent
	}, time.Second, 5*time.Millisecond)
}

func TestAggregator_AbortSilencesEverything(t *testing.T) {
	a, store, notify := newTestAggregator(t, 20*time.Millisecond)

	a.StartText(100, "хочу замовити кульки")
	a.Abort(100)

	_, ok := store.Draft(100)
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, notify.noticeCount(), "aborted draft never fans out")
	assert.False(t, store.InQueue(100))
}

func TestAggregator_LiveDraftQueries(t *testing.T) {
	a, _, _ := newTestAggregator(t, time.Hour)

	assert.False(t, a.HasLiveDraft(100))
	assert.False(t, a.HasSentDraft(100))

	a.StartText(100, "хочу замовити кульки")
	assert.True(t, a.HasLiveDraft(100))
	assert.False(t, a.HasSentDraft(100))

	a.Finalize(100)
	assert.False(t, a.HasLiveDraft(100))
	assert.True(t, a.HasSentDraft(100))
}
