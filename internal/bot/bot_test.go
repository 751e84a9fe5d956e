// ABOUTME: Tests for the periodic maintenance jobs
// ABOUTME: Snapshot persistence, birthday greetings and daily dedup

package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicair/chatdesk/internal/config"
	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeSender) SendText(chatID int64, text string, kb ...transport.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return len(f.sent[chatID]), nil
}

func (f *fakeSender) SendImage(chatID int64, fileID, caption string, kb ...transport.Keyboard) (int, error) {
	return f.SendText(chatID, caption)
}

func (f *fakeSender) EditText(int64, int, string, ...transport.Keyboard) error { return nil }
func (f *fakeSender) DeleteMessage(int64, int) error                           { return nil }
func (f *fakeSender) AnswerCallback(string, string) error                      { return nil }

func newTestBot(t *testing.T, at time.Time) (*Bot, *fakeSender) {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sender := &fakeSender{}
	b := &Bot{
		cfg: &config.Config{
			Hours: config.HoursConfig{Start: 9, End: 21, Timezone: "UTC"},
		},
		logger: slog.Default(),
		live:   state.NewMemory(nil),
		db:     db,
		send:   sender,
		now:    func() time.Time { return at },
	}
	return b, sender
}

func TestMaintenance_Snapshot(t *testing.T) {
	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	b, _ := newTestBot(t, at)
	ctx := context.Background()

	require.NoError(t, b.live.Enqueue(100))
	b.maintenance(ctx)

	blob, err := b.db.LatestSnapshot(ctx)
	require.NoError(t, err)

	var snap snapshotState
	require.NoError(t, json.Unmarshal(blob, &snap))
	assert.Equal(t, []int64{100}, snap.Waiting)
}

func TestMaintenance_BirthdayGreetingOncePerDay(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	b, sender := newTestBot(t, at)
	ctx := context.Background()

	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 100, Name: "Олена", Birthday: "14.03.1990", Notifications: true,
	}))
	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 200, Name: "Ігор", Birthday: "15.03.1990", Notifications: true,
	}))

	b.maintenance(ctx)
	require.Len(t, sender.sent[100], 1)
	assert.Contains(t, sender.sent[100][0], "Олена")
	assert.Contains(t, sender.sent[100][0], "Днем народження")
	assert.Empty(t, sender.sent[200], "wrong-day birthday is skipped")

	// A second pass within the same day must not re-greet.
	b.maintenance(ctx)
	assert.Len(t, sender.sent[100], 1)
}

func TestMaintenance_HolidayGreeting(t *testing.T) {
	at := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	b, sender := newTestBot(t, at)
	ctx := context.Background()

	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 100, Name: "Олена", Notifications: true,
	}))
	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 200, Notifications: true, // nameless
	}))
	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 300, Name: "Ігор", Notifications: false,
	}))

	b.maintenance(ctx)
	require.Len(t, sender.sent[100], 1)
	assert.Contains(t, sender.sent[100][0], "День Святого Валентина")
	assert.Empty(t, sender.sent[200], "profiles without a name are skipped")
	assert.Empty(t, sender.sent[300], "opted-out profiles are skipped")

	// Same-day rerun is absorbed by the daily gate.
	b.maintenance(ctx)
	assert.Len(t, sender.sent[100], 1)
}

func TestMaintenance_HolidayReminderThreeDaysAhead(t *testing.T) {
	at := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	b, sender := newTestBot(t, at)
	ctx := context.Background()

	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 100, Name: "Олена", Notifications: true,
	}))

	b.maintenance(ctx)
	require.Len(t, sender.sent[100], 1)
	assert.Contains(t, sender.sent[100][0], "Через 3 дні")
	assert.Contains(t, sender.sent[100][0], "День Святого Валентина")
}

func TestMaintenance_SkipsOutsideGreetingHour(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	b, sender := newTestBot(t, at)
	ctx := context.Background()

	require.NoError(t, b.db.UpsertProfile(ctx, store.Profile{
		ClientID: 100, Birthday: "14.03.1990", Notifications: true,
	}))

	b.maintenance(ctx)
	assert.Empty(t, sender.sent[100])
}
