// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Automatic schema creation, WAL mode, uuid primary keys

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps reads from blocking the hot path's best-effort writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			client_id           INTEGER PRIMARY KEY,
			name                TEXT NOT NULL DEFAULT '',
			phone               TEXT NOT NULL DEFAULT '',
			birthday            TEXT NOT NULL DEFAULT '',
			notifications       INTEGER NOT NULL DEFAULT 1,
			birthday_changed_at DATETIME,
			last_activity       DATETIME,
			created_at          DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS message_log (
			id          TEXT PRIMARY KEY,
			client_id   INTEGER NOT NULL,
			operator_id INTEGER NOT NULL DEFAULT 0,
			direction   TEXT NOT NULL,
			kind        TEXT NOT NULL,
			text        TEXT NOT NULL,
			created_at  DATETIME NOT NULL,

			CHECK (direction IN ('in', 'out')),
			CHECK (kind IN ('text', 'photo', 'relay', 'order'))
		);

		CREATE INDEX IF NOT EXISTS idx_log_client_created
			ON message_log(client_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_log_created
			ON message_log(created_at DESC);

		CREATE TABLE IF NOT EXISTS promotions (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			end_date    DATETIME NOT NULL,
			created_by  INTEGER NOT NULL,
			created_at  DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_promotions_end ON promotions(end_date);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			state      BLOB NOT NULL,
			created_at DATETIME NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertProfile inserts or replaces the customer's profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (client_id, name, phone, birthday, notifications, birthday_changed_at, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			birthday = excluded.birthday,
			notifications = excluded.notifications,
			birthday_changed_at = excluded.birthday_changed_at,
			last_activity = excluded.last_activity`,
		p.ClientID, p.Name, p.Phone, p.Birthday, boolToInt(p.Notifications),
		nullTime(p.BirthdayChangedAt), nullTime(p.LastActivity), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting profile %d: %w", p.ClientID, err)
	}
	return nil
}

// GetProfile fetches one profile or ErrNotFound.
func (s *SQLiteStore) GetProfile(ctx context.Context, clientID int64) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, name, phone, birthday, notifications, birthday_changed_at, last_activity, created_at
		FROM profiles WHERE client_id = ?`, clientID)
	return scanProfile(row)
}

// ListProfiles returns every profile, most recently active first.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, name, phone, birthday, notifications, birthday_changed_at, last_activity, created_at
		FROM profiles ORDER BY last_activity DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TouchActivity bumps the profile's last-activity timestamp, creating a
// bare profile on first contact.
func (s *SQLiteStore) TouchActivity(ctx context.Context, clientID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (client_id, last_activity, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET last_activity = excluded.last_activity`,
		clientID, at, at)
	if err != nil {
		return fmt.Errorf("touching activity for %d: %w", clientID, err)
	}
	return nil
}

// BirthdaysOn returns profiles whose stored birthday falls on day.month
// and who have notifications enabled.
func (s *SQLiteStore) BirthdaysOn(ctx context.Context, day, month int) ([]Profile, error) {
	prefix := fmt.Sprintf("%02d.%02d.", day, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, name, phone, birthday, notifications, birthday_changed_at, last_activity, created_at
		FROM profiles WHERE birthday LIKE ? || '%' AND notifications = 1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("querying birthdays: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendLog writes one message-log line. The ID is assigned here.
func (s *SQLiteStore) AppendLog(ctx context.Context, e LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_log (id, client_id, operator_id, direction, kind, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientID, e.OperatorID, e.Direction, e.Kind, e.Text, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending log entry: %w", err)
	}
	return nil
}

// ClientHistory returns a client's log page, newest first.
func (s *SQLiteStore) ClientHistory(ctx context.Context, clientID int64, limit, offset int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, operator_id, direction, kind, text, created_at
		FROM message_log WHERE client_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying history for %d: %w", clientID, err)
	}
	defer rows.Close()
	return collectLog(rows)
}

// SearchLog finds log lines containing query, newest first.
func (s *SQLiteStore) SearchLog(ctx context.Context, query string, limit int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, operator_id, direction, kind, text, created_at
		FROM message_log WHERE text LIKE '%' || ? || '%'
		ORDER BY created_at DESC LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching log: %w", err)
	}
	defer rows.Close()
	return collectLog(rows)
}

// CreatePromotion stores a new campaign. The ID is assigned here.
func (s *SQLiteStore) CreatePromotion(ctx context.Context, p Promotion) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, title, description, end_date, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.EndDate, p.CreatedBy, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating promotion: %w", err)
	}
	return nil
}

// ActivePromotions returns campaigns whose end date has not passed.
func (s *SQLiteStore) ActivePromotions(ctx context.Context) ([]Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, end_date, created_by, created_at
		FROM promotions WHERE end_date >= ? ORDER BY end_date`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("querying promotions: %w", err)
	}
	defer rows.Close()

	var out []Promotion
	for rows.Next() {
		var p Promotion
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.EndDate, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning promotion: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgeExpiredPromotions deletes campaigns past their end date and
// reports how many were removed.
func (s *SQLiteStore) PurgeExpiredPromotions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM promotions WHERE end_date < ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("purging promotions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SaveSnapshot stores a full-state backup blob.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, state, created_at) VALUES (?, ?, ?)`,
		uuid.New().String(), blob, time.Now())
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest backup blob or ErrNotFound.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM snapshots ORDER BY created_at DESC LIMIT 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return blob, nil
}

// GetStats computes the aggregates behind the operator stats command.
func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	dayAgo := time.Now().Add(-24 * time.Hour)

	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM message_log),
			(SELECT COUNT(*) FROM message_log WHERE created_at >= ?),
			(SELECT COUNT(*) FROM promotions WHERE end_date >= ?)`,
		dayAgo, time.Now())
	if err := row.Scan(&st.Clients, &st.Messages, &st.MessagesToday, &st.ActivePromos); err != nil {
		return Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	return st, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	var notifications int
	var birthdayChanged, lastActivity sql.NullTime
	err := row.Scan(&p.ClientID, &p.Name, &p.Phone, &p.Birthday, &notifications,
		&birthdayChanged, &lastActivity, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("scanning profile: %w", err)
	}
	p.Notifications = notifications != 0
	p.BirthdayChangedAt = birthdayChanged.Time
	p.LastActivity = lastActivity.Time
	return p, nil
}

func collectLog(rows *sql.Rows) ([]LogEntry, error) {
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.OperatorID, &e.Direction, &e.Kind, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
