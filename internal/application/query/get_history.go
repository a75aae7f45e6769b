package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HISTORY QUERY
// Журнал прогрессии компаньона, новые записи первыми.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultHistoryLimit - размер страницы по умолчанию.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit - максимальный размер страницы.
	MaxHistoryLimit = 500
)

// GetHistoryQuery содержит параметры запроса журнала.
type GetHistoryQuery struct {
	CompanionID string

	// Limit - число записей (0 = DefaultHistoryLimit, максимум MaxHistoryLimit).
	Limit int
}

// Validate проверяет корректность параметров запроса и нормализует лимит.
func (q *GetHistoryQuery) Validate() error {
	if strings.TrimSpace(q.CompanionID) == "" {
		return shared.NewDomainError("query", "GetHistory", shared.ErrValidation, "companion_id is required")
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetHistory", shared.ErrValidation, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return nil
}

// HistoryDTO - страница журнала.
type HistoryDTO struct {
	CompanionID string                     `json:"companion_id"`
	Entries     []progression.HistoryEntry `json:"entries"`
}

// GetHistoryHandler обрабатывает запрос журнала.
type GetHistoryHandler struct {
	repo progression.Repository
}

// NewGetHistoryHandler создаёт обработчик.
func NewGetHistoryHandler(repo progression.Repository) *GetHistoryHandler {
	return &GetHistoryHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *GetHistoryHandler) Handle(ctx context.Context, q GetHistoryQuery) (*HistoryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	entries, err := h.repo.History(ctx, q.CompanionID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_history: %w", err)
	}
	if entries == nil {
		entries = []progression.HistoryEntry{}
	}
	return &HistoryDTO{CompanionID: q.CompanionID, Entries: entries}, nil
}
