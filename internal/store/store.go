// ABOUTME: Store interface and record types for the persistence layer
// ABOUTME: Consumed by the router, the profile wizard and the admin CLI

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Profile is a customer's durable record.
type Profile struct {
	ClientID          int64
	Name              string
	Phone             string
	Birthday          string // dd.mm.yyyy, empty when unset
	Notifications     bool
	BirthdayChangedAt time.Time // zero when birthday never set
	LastActivity      time.Time
	CreatedAt         time.Time
}

// Message directions relative to the bot.
const (
	DirIn  = "in"
	DirOut = "out"
)

// Message kinds recorded in the log.
const (
	KindText  = "text"
	KindPhoto = "photo"
	KindRelay = "relay" // operator<->client pass-through
	KindOrder = "order" // finalized order summary
)

// LogEntry is one line of the append-only message log.
type LogEntry struct {
	ID         string
	ClientID   int64
	OperatorID int64 // zero unless the entry involves an operator
	Direction  string
	Kind       string
	Text       string
	CreatedAt  time.Time
}

// Promotion is an operator-authored campaign shown to customers.
type Promotion struct {
	ID          string
	Title       string
	Description string
	EndDate     time.Time
	CreatedBy   int64
	CreatedAt   time.Time
}

// Stats is the aggregate view behind the operator stats command.
type Stats struct {
	Clients       int
	Messages      int
	MessagesToday int
	ActivePromos  int
}

// Store is the persistence surface. All methods are safe for concurrent
// use; failures are non-fatal to callers, which treat in-memory state as
// authoritative.
type Store interface {
	// Profiles
	UpsertProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, clientID int64) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	TouchActivity(ctx context.Context, clientID int64, at time.Time) error
	BirthdaysOn(ctx context.Context, day, month int) ([]Profile, error)

	// Message log
	AppendLog(ctx context.Context, e LogEntry) error
	ClientHistory(ctx context.Context, clientID int64, limit, offset int) ([]LogEntry, error)
	SearchLog(ctx context.Context, query string, limit int) ([]LogEntry, error)

	// Promotions
	CreatePromotion(ctx context.Context, p Promotion) error
	ActivePromotions(ctx context.Context) ([]Promotion, error)
	PurgeExpiredPromotions(ctx context.Context) (int, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, blob []byte) error
	LatestSnapshot(ctx context.Context) ([]byte, error)

	// Aggregates
	GetStats(ctx context.Context) (Stats, error)

	Close() error
}
