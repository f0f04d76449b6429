// Package store is the SQLite persistence layer behind the work queue:
// the result cache, the durable task queue, the savepoint operations used
// by transactional tasks, and the wallet's activity/payment tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoTasks is returned by ExtractNextQueuedTask when the queue is empty.
var ErrNoTasks = errors.New("no queued tasks available")

// QueuedTask is one persisted queue record. ExpiresAt is unix millis;
// nil means the record never expires.
type QueuedTask struct {
	TaskName  string
	Arguments string
	ExpiresAt *int64
	AddedAt   int64
	Priority  int
	ID        int64
}

// Store defines the persistence operations the engine needs.
// @gtg mp-metrics
type Store interface {
	GetCache(ctx context.Context, key string) (value string, ok bool, err error)
	SetCache(ctx context.Context, key, value string, expiresAt *time.Time) (err error)
	AddQueuedTask(ctx context.Context, taskName, arguments string, expiresAt *time.Time, priority int) (id int64, err error)
	ExtractNextQueuedTask(ctx context.Context) (task *QueuedTask, err error)
	DeleteQueuedTask(ctx context.Context, id int64) (err error)
	StartSavepoint(ctx context.Context, name string) (err error)
	ReleaseSavepoint(ctx context.Context, name string) (err error)
	RollbackSavepoint(ctx context.Context, name string) (err error)
	AddActivity(ctx context.Context, activity *Activity) (id int64, err error)
	SetActivityStatus(ctx context.Context, id int64, status, reason string) (err error)
	UpsertPaymentStatus(ctx context.Context, eventID, state string) (err error)
	GetPaymentStatus(ctx context.Context, eventID string) (state string, ok bool, err error)
	CountActivities(ctx context.Context) (count int64, err error)
	Close() (err error)
}

// Activity is the persisted shape of an activity-feed row.
type Activity struct {
	Type            string
	Status          string
	EventID         string
	CounterpartyKey string
	Currency        string
	Reason          string
	AmountMsat      int64
	ID              int64
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS task_queue (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    task_name  TEXT NOT NULL,
    arguments  TEXT NOT NULL,
    added_at   INTEGER NOT NULL,
    expires_at INTEGER,
    priority   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activities (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    type             TEXT NOT NULL,
    status           TEXT NOT NULL,
    event_id         TEXT NOT NULL,
    counterparty_key TEXT NOT NULL DEFAULT '',
    amount_msat      INTEGER NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    reason           TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_statuses (
    event_id   TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

type store struct {
	db *sql.DB
}

// Open creates or opens the wallet database. Savepoint nesting requires
// that every statement run on the same connection, so the pool is pinned
// to a single writer; WAL keeps readers from blocking on it.
func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err = db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &store{db: db}, nil
}

// GetCache returns the live cached value for key. Expired rows are
// deleted lazily and reported as a miss.
func (s *store) GetCache(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read cache: %w", err)
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixMilli() {
		if _, err = s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return "", false, fmt.Errorf("failed to evict expired cache entry: %w", err)
		}
		return "", false, nil
	}
	return value, true, nil
}

// SetCache writes a cached value; nil expiresAt means forever.
func (s *store) SetCache(ctx context.Context, key, value string, expiresAt *time.Time) error {
	var expiry sql.NullInt64
	if expiresAt != nil {
		expiry = sql.NullInt64{Int64: expiresAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
    `, key, value, expiry)
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// AddQueuedTask ...
func (s *store) AddQueuedTask(ctx context.Context, taskName, arguments string, expiresAt *time.Time, priority int) (int64, error) {
	var expiry sql.NullInt64
	if expiresAt != nil {
		expiry = sql.NullInt64{Int64: expiresAt.UnixMilli(), Valid: true}
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO task_queue (task_name, arguments, added_at, expires_at, priority)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `, taskName, arguments, time.Now().Unix(), expiry, priority).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to add queued task: %w", err)
	}
	return id, nil
}

// ExtractNextQueuedTask atomically pops the front of the queue, FIFO by
// insertion order within a priority band, so concurrent drains never
// double-process a record.
func (s *store) ExtractNextQueuedTask(ctx context.Context) (*QueuedTask, error) {
	var task QueuedTask
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
        DELETE FROM task_queue
        WHERE id = (
            SELECT id FROM task_queue
            ORDER BY priority DESC, added_at ASC, id ASC
            LIMIT 1
        )
        RETURNING id, task_name, arguments, added_at, expires_at, priority
    `).Scan(&task.ID, &task.TaskName, &task.Arguments, &task.AddedAt, &expiresAt, &task.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTasks
	} else if err != nil {
		return nil, fmt.Errorf("failed to extract next queued task: %w", err)
	}
	if expiresAt.Valid {
		task.ExpiresAt = &expiresAt.Int64
	}
	return &task, nil
}

// DeleteQueuedTask ...
func (s *store) DeleteQueuedTask(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queued task: %w", err)
	}
	return nil
}

// StartSavepoint ...
func (s *store) StartSavepoint(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`SAVEPOINT %q`, name)); err != nil {
		return fmt.Errorf("failed to start savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint ...
func (s *store) ReleaseSavepoint(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`RELEASE SAVEPOINT %q`, name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackSavepoint rolls back to the savepoint and releases it, so the
// name can be reused by a later attempt.
func (s *store) RollbackSavepoint(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ROLLBACK TO SAVEPOINT %q`, name)); err != nil {
		return fmt.Errorf("failed to rollback savepoint %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`RELEASE SAVEPOINT %q`, name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s after rollback: %w", name, err)
	}
	return nil
}

// AddActivity ...
func (s *store) AddActivity(ctx context.Context, activity *Activity) (int64, error) {
	now := time.Now().Unix()
	var id int64
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO activities (type, status, event_id, counterparty_key, amount_msat, currency, reason, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `, activity.Type, activity.Status, activity.EventID, activity.CounterpartyKey,
		activity.AmountMsat, activity.Currency, activity.Reason, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to add activity: %w", err)
	}
	activity.ID = id
	return id, nil
}

// SetActivityStatus ...
func (s *store) SetActivityStatus(ctx context.Context, id int64, status, reason string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE activities SET status = ?, reason = ?, updated_at = ? WHERE id = ?
    `, status, reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update activity status: %w", err)
	}
	return nil
}

// UpsertPaymentStatus ...
func (s *store) UpsertPaymentStatus(ctx context.Context, eventID, state string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO payment_statuses (event_id, state, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(event_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
    `, eventID, state, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert payment status: %w", err)
	}
	return nil
}

// GetPaymentStatus ...
func (s *store) GetPaymentStatus(ctx context.Context, eventID string) (string, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM payment_statuses WHERE event_id = ?`, eventID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read payment status: %w", err)
	}
	return state, true, nil
}

// CountActivities ...
func (s *store) CountActivities(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return count, nil
}

// Close ...
func (s *store) Close() error {
	return s.db.Close()
}
