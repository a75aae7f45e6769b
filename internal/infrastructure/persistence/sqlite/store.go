// Package sqlite provides a SQLite-backed progression store for single-node
// and development deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// DefaultHistoryLimit applies when History is called with a non-positive limit.
const DefaultHistoryLimit = 50

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store persists progression state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ progression.Repository = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// every connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrationFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Load returns the stored state or shared.ErrProgressionNotFound.
func (s *Store) Load(ctx context.Context, companionID string) (progression.ProgressionState, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state FROM progression_states WHERE companion_id = ?`,
		companionID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.ProgressionState{}, shared.ErrProgressionNotFound
		}
		return progression.ProgressionState{}, classify("Load", err)
	}

	var state progression.ProgressionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return progression.ProgressionState{}, fmt.Errorf("%w: %v", shared.ErrCorruptState, err)
	}
	return state, nil
}

// Save upserts the state document.
func (s *Store) Save(ctx context.Context, companionID string, state progression.ProgressionState) error {
	if strings.TrimSpace(companionID) == "" {
		return fmt.Errorf("companion id is required")
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	now := toMillis(time.Now())
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO progression_states (companion_id, level, stage, total_experience, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (companion_id) DO UPDATE SET
			level = excluded.level,
			stage = excluded.stage,
			total_experience = excluded.total_experience,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		companionID,
		state.Level,
		string(state.Stage),
		state.TotalExperience(),
		string(doc),
		now,
		now,
	)
	return classify("Save", err)
}

// Delete removes the state and history of a companion.
func (s *Store) Delete(ctx context.Context, companionID string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classify("Delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progression_history WHERE companion_id = ?`, companionID); err != nil {
		_ = tx.Rollback()
		return classify("Delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progression_states WHERE companion_id = ?`, companionID); err != nil {
		_ = tx.Rollback()
		return classify("Delete", err)
	}
	return classify("Delete", tx.Commit())
}

// AppendHistory inserts a journal entry. A missing ID is generated.
func (s *Store) AppendHistory(ctx context.Context, entry progression.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var payload sql.NullString
	if len(entry.Payload) > 0 {
		payload = sql.NullString{String: string(entry.Payload), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO progression_history (id, companion_id, kind, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CompanionID,
		entry.Kind,
		payload,
		toMillis(entry.OccurredAt),
	)
	return classify("AppendHistory", err)
}

// History returns the latest entries, newest first.
func (s *Store) History(ctx context.Context, companionID string, limit int) ([]progression.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, companion_id, kind, payload, occurred_at
		FROM progression_history
		WHERE companion_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		companionID, limit,
	)
	if err != nil {
		return nil, classify("History", err)
	}
	defer rows.Close()

	entries := make([]progression.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e       progression.HistoryEntry
			payload sql.NullString
			at      int64
		)
		if err := rows.Scan(&e.ID, &e.CompanionID, &e.Kind, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.OccurredAt = fromMillis(at)
		entries = append(entries, e)
	}
	return entries, classify("History", rows.Err())
}

// PruneHistory removes journal entries that occurred before the cutoff.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM progression_history WHERE occurred_at < ?`,
		toMillis(before),
	)
	if err != nil {
		return 0, classify("PruneHistory", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("PruneHistory", err)
	}
	return n, nil
}

// classify marks lock contention as retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return shared.WrapError("storage", op, shared.ErrServiceUnavailable, "database is locked", err)
		case sqlite3lib.SQLITE_CONSTRAINT:
			return shared.WrapError("storage", op, shared.ErrInvalidState, "constraint violated", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("storage", op, shared.ErrTimeout, "query timed out", err)
	}
	return fmt.Errorf("sqlite %s: %w", strings.ToLower(op), err)
}
