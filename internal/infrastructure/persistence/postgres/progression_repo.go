package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultHistoryLimit applies when History is called with a non-positive limit.
const DefaultHistoryLimit = 50

// ProgressionRepository implements progression.Repository for PostgreSQL.
type ProgressionRepository struct {
	conn *Connection
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(conn *Connection) *ProgressionRepository {
	return &ProgressionRepository{conn: conn}
}

var _ progression.Repository = (*ProgressionRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

// Load returns the stored state or shared.ErrProgressionNotFound.
func (r *ProgressionRepository) Load(ctx context.Context, companionID string) (progression.ProgressionState, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var raw []byte
	err := r.conn.QueryRow(ctx,
		`SELECT state FROM progression_states WHERE companion_id = $1`,
		companionID,
	).Scan(&raw)
	if err != nil {
		if IsNoRows(err) {
			return progression.ProgressionState{}, shared.ErrProgressionNotFound
		}
		return progression.ProgressionState{}, classify("Load", err)
	}

	var state progression.ProgressionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return progression.ProgressionState{}, fmt.Errorf("%w: %v", shared.ErrCorruptState, err)
	}
	return state, nil
}

// Save upserts the state document.
func (r *ProgressionRepository) Save(ctx context.Context, companionID string, state progression.ProgressionState) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO progression_states (companion_id, level, stage, total_experience, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (companion_id) DO UPDATE SET
			level = EXCLUDED.level,
			stage = EXCLUDED.stage,
			total_experience = EXCLUDED.total_experience,
			state = EXCLUDED.state,
			updated_at = NOW()
	`,
		companionID,
		state.Level,
		string(state.Stage),
		state.TotalExperience(),
		doc,
	)
	return classify("Save", err)
}

// Delete removes the state and history of a companion.
func (r *ProgressionRepository) Delete(ctx context.Context, companionID string) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM progression_history WHERE companion_id = $1`, companionID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM progression_states WHERE companion_id = $1`, companionID)
		return err
	})
	return classify("Delete", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// AppendHistory inserts a journal entry. A missing ID is generated.
func (r *ProgressionRepository) AppendHistory(ctx context.Context, entry progression.HistoryEntry) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO progression_history (id, companion_id, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		entry.ID,
		entry.CompanionID,
		entry.Kind,
		payload,
		entry.OccurredAt.UTC(),
	)
	return classify("AppendHistory", err)
}

// History returns the latest entries, newest first.
func (r *ProgressionRepository) History(ctx context.Context, companionID string, limit int) ([]progression.HistoryEntry, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, companion_id, kind, payload, occurred_at
		FROM progression_history
		WHERE companion_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, companionID, limit)
	if err != nil {
		return nil, classify("History", err)
	}
	defer rows.Close()

	entries := make([]progression.HistoryEntry, 0, limit)
	for rows.Next() {
		var e progression.HistoryEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.CompanionID, &e.Kind, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}
	return entries, classify("History", rows.Err())
}

// PruneHistory removes journal entries that occurred before the cutoff.
func (r *ProgressionRepository) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.Exec(ctx, `DELETE FROM progression_history WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, classify("PruneHistory", err)
	}
	return tag.RowsAffected(), nil
}
