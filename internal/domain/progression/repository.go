package progression

import (
	"context"
	"encoding/json"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Ядро не знает о хранилище: состояние - простые данные, которые адаптеры
// сохраняют как JSON-документ. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит состояние прогрессии компаньонов.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// State
	// ─────────────────────────────────────────────────────────────────────────

	// Load возвращает сохранённое состояние.
	// Возвращает shared.ErrProgressionNotFound, если состояния нет.
	Load(ctx context.Context, companionID string) (ProgressionState, error)

	// Save сохраняет состояние (upsert).
	Save(ctx context.Context, companionID string, state ProgressionState) error

	// Delete удаляет состояние и историю компаньона.
	Delete(ctx context.Context, companionID string) error

	// ─────────────────────────────────────────────────────────────────────────
	// History
	// ─────────────────────────────────────────────────────────────────────────

	// AppendHistory добавляет запись в журнал событий прогрессии.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// History возвращает последние записи журнала, новые первыми.
	History(ctx context.Context, companionID string, limit int) ([]HistoryEntry, error)
}

// HistoryPruner - хранилище, умеющее удалять устаревшие записи журнала.
type HistoryPruner interface {
	// PruneHistory удаляет записи, произошедшие раньше before, и
	// возвращает их число.
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// HistoryEntry - запись журнала прогрессии (аналог истории изменений XP).
type HistoryEntry struct {
	ID          string          `json:"id"`
	CompanionID string          `json:"companion_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// StatsCache кеширует сводку прогрессии для частых запросов UI.
type StatsCache interface {
	// Get возвращает сводку или shared.ErrCacheMiss.
	Get(ctx context.Context, companionID string) (EvolutionStats, error)

	// Set сохраняет сводку.
	Set(ctx context.Context, companionID string, stats EvolutionStats, ttl time.Duration) error

	// Invalidate удаляет сводку компаньона.
	Invalidate(ctx context.Context, companionID string) error
}
