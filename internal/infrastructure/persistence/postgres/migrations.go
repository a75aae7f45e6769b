package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_progression",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "history_retention_index",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One progression document per companion. Level and stage are duplicated
-- into columns for operational queries; the document is authoritative.
CREATE TABLE IF NOT EXISTS progression_states (
    companion_id VARCHAR(100) PRIMARY KEY,
    level SMALLINT NOT NULL,
    stage VARCHAR(20) NOT NULL,
    total_experience INTEGER NOT NULL,
    state JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level BETWEEN 1 AND 10),
    CONSTRAINT valid_stage CHECK (stage IN ('nascent', 'developing', 'maturing', 'evolved', 'transcendent')),
    CONSTRAINT valid_total_experience CHECK (total_experience >= 0)
);

CREATE INDEX IF NOT EXISTS idx_progression_states_stage ON progression_states(stage);

-- Append-only journal of progression events.
CREATE TABLE IF NOT EXISTS progression_history (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    companion_id VARCHAR(100) NOT NULL,
    kind VARCHAR(40) NOT NULL,
    payload JSONB,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progression_history_companion ON progression_history(companion_id, seq DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS progression_history;
DROP TABLE IF EXISTS progression_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: HISTORY RETENTION INDEX
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE INDEX IF NOT EXISTS idx_progression_history_occurred ON progression_history(occurred_at);
`

const migration002Down = `
DROP INDEX IF EXISTS idx_progression_history_occurred;
`
