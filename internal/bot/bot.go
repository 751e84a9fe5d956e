// ABOUTME: Bot construction and the main run loop with periodic maintenance
// ABOUTME: Inbound updates are processed sequentially, per-party order preserved

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magicair/chatdesk/internal/ai"
	"github.com/magicair/chatdesk/internal/config"
	"github.com/magicair/chatdesk/internal/ratelimit"
	"github.com/magicair/chatdesk/internal/router"
	"github.com/magicair/chatdesk/internal/sched"
	"github.com/magicair/chatdesk/internal/state"
	"github.com/magicair/chatdesk/internal/store"
	"github.com/magicair/chatdesk/internal/transport"
)

// birthdayHour is the local hour at which greetings go out.
const birthdayHour = 10

// holiday is one entry of the fixed greeting calendar.
type holiday struct {
	day, month int
	name       string
	emoji      string
}

var holidays = []holiday{
	{1, 1, "Новий рік", "🎊"},
	{14, 2, "День Святого Валентина", "💕"},
	{8, 3, "Міжнародний жіночий день", "🌸"},
	{31, 10, "Хелловін", "🎃"},
	{25, 12, "Різдво", "🎄"},
}

// Bot owns every long-lived component.
type Bot struct {
	cfg     *config.Config
	logger  *slog.Logger
	live    *state.Memory
	db      store.Store
	send    transport.Sender
	updates func(ctx context.Context) <-chan transport.Update
	router  *router.Router
	limiter *ratelimit.Limiter
	timers  *sched.Scheduler

	now         func() time.Time
	lastDailyRun string // yyyy-mm-dd in the business timezone
}

// New builds the bot from configuration: Telegram transport, SQLite
// store, in-memory live state, rate limiter, scheduler, AI responder
// and the router on top.
func New(cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	tg, err := transport.NewTelegram(cfg.Telegram.Token, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting transport: %w", err)
	}

	live := state.NewMemory(logger)
	limiter := ratelimit.New(cfg.RateLimit.Cap, cfg.RateLimit.Window, cfg.RateLimit.Cooldown)
	timers := sched.New(logger)
	history := ai.NewHistory(cfg.AI.HistorySize, cfg.AI.HistoryTTL)
	completer := ai.NewOpenAI(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout, logger)

	r := router.New(cfg, live, db, tg, limiter, timers, completer, history, logger)

	return &Bot{
		cfg:     cfg,
		logger:  logger.With("component", "bot"),
		live:    live,
		db:      db,
		send:    tg,
		updates: tg.Updates,
		router:  r,
		limiter: limiter,
		timers:  timers,
		now:     time.Now,
	}, nil
}

// Run processes updates until ctx is cancelled. Updates are handled
// sequentially, which preserves per-party ordering from the transport;
// only timers (auto-finalize, sweep, maintenance) mutate state
// concurrently, and each re-checks freshness before acting.
func (b *Bot) Run(ctx context.Context) error {
	defer b.shutdown()

	updates := b.updates(ctx)
	sweep := time.NewTicker(b.cfg.Sweep.Interval)
	defer sweep.Stop()
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()

	b.logger.Info("chatdesk running",
		"operators", len(b.cfg.Operators),
		"sweep_interval", b.cfg.Sweep.Interval,
	)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("shutting down")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.router.HandleUpdate(ctx, u)
		case <-sweep.C:
			b.router.Sweep()
		case <-hourly.C:
			b.maintenance(ctx)
		}
	}
}

func (b *Bot) shutdown() {
	b.timers.Close()
	b.limiter.Close()
	if err := b.db.Close(); err != nil {
		b.logger.Warn("store close failed", "error", err)
	}
}

// maintenance runs the hourly jobs: a best-effort state snapshot every
// pass, and the once-a-day birthday greetings and promotion purge.
func (b *Bot) maintenance(ctx context.Context) {
	b.snapshot(ctx)

	now := b.now().In(b.cfg.Location())
	if now.Hour() != birthdayHour {
		return
	}
	day := now.Format("2006-01-02")
	if b.lastDailyRun == day {
		return
	}
	b.lastDailyRun = day

	b.greetBirthdays(ctx, now)
	b.greetHolidays(ctx, now)
	if purged, err := b.db.PurgeExpiredPromotions(ctx); err != nil {
		b.logger.Warn("promotion purge failed", "error", err)
	} else if purged > 0 {
		b.logger.Info("purged expired promotions", "count", purged)
	}
}

// snapshotState is the periodic full-state backup blob.
type snapshotState struct {
	Waiting     []int64         `json:"waiting"`
	Assignments map[int64]int64 `json:"assignments"`
	SavedAt     time.Time       `json:"saved_at"`
}

// snapshot persists a coarse backup of the live routing state. It is
// never read back automatically; live memory stays authoritative.
func (b *Bot) snapshot(ctx context.Context) {
	blob, err := json.Marshal(snapshotState{
		Waiting:     b.live.Waiting(),
		Assignments: b.live.Assignments(),
		SavedAt:     b.now(),
	})
	if err != nil {
		b.logger.Warn("snapshot marshal failed", "error", err)
		return
	}
	if err := b.db.SaveSnapshot(ctx, blob); err != nil {
		b.logger.Warn("snapshot save failed", "error", err)
	}
}

// greetBirthdays congratulates every opted-in customer whose birthday
// is today.
func (b *Bot) greetBirthdays(ctx context.Context, now time.Time) {
	profiles, err := b.db.BirthdaysOn(ctx, now.Day(), int(now.Month()))
	if err != nil {
		b.logger.Warn("birthday query failed", "error", err)
		return
	}
	for _, p := range profiles {
		name := p.Name
		if name == "" {
			name = "друже"
		}
		text := fmt.Sprintf("🎂 %s, з Днем народження від команди MagicAir! 🎈\nЗавітайте до нас — святковий настрій гарантуємо!", name)
		if _, err := b.send.SendText(p.ClientID, text); err != nil {
			b.logger.Warn("birthday greeting failed", "client_id", p.ClientID, "error", err)
		}
	}
	if len(profiles) > 0 {
		b.logger.Info("birthday greetings sent", "count", len(profiles))
	}
}

// greetHolidays congratulates opted-in customers on the day of a holiday
// and reminds them three days ahead. Runs inside the once-a-day
// maintenance gate, so each message goes out at most once.
func (b *Bot) greetHolidays(ctx context.Context, now time.Time) {
	for _, h := range holidays {
		if now.Day() == h.day && int(now.Month()) == h.month {
			b.sendHolidayGreeting(ctx, fmt.Sprintf(
				"%s %s! %s\n\nMagicAir вітає вас зі святом!\n\n🎁 Сьогодні діють знижки до 10%% в наших магазинах!\n\nЗавітайте до нас за святковим настроєм! 🎈",
				h.emoji, h.name, h.emoji))
		}
		ahead := now.AddDate(0, 0, 3)
		if ahead.Day() == h.day && int(ahead.Month()) == h.month {
			b.sendHolidayGreeting(ctx, fmt.Sprintf(
				"🗓 Через 3 дні %s! %s\n\nНе забудьте підготуватися до свята!\n\n🎈 У MagicAir великий вибір святкового декору.\nЗамовляйте заздалегідь!",
				h.name, h.emoji))
		}
	}
}

// sendHolidayGreeting delivers one holiday message to every opted-in,
// named profile.
func (b *Bot) sendHolidayGreeting(ctx context.Context, text string) {
	profiles, err := b.db.ListProfiles(ctx)
	if err != nil {
		b.logger.Warn("holiday query failed", "error", err)
		return
	}
	sent := 0
	for _, p := range profiles {
		if !p.Notifications || p.Name == "" {
			continue
		}
		if _, err := b.send.SendText(p.ClientID, text); err != nil {
			b.logger.Warn("holiday greeting failed", "client_id", p.ClientID, "error", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		b.logger.Info("holiday greetings sent", "count", sent)
	}
}
