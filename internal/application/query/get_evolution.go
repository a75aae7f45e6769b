package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/aicompanion/companion-hub/internal/application/session"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/companion"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EVOLUTION QUERY
// Полное состояние прогрессии и профиль личности компаньона.
// ══════════════════════════════════════════════════════════════════════════════

// GetEvolutionQuery содержит параметры запроса состояния.
type GetEvolutionQuery struct {
	CompanionID string
}

// Validate проверяет корректность параметров запроса.
func (q GetEvolutionQuery) Validate() error {
	if strings.TrimSpace(q.CompanionID) == "" {
		return shared.NewDomainError("query", "GetEvolution", shared.ErrValidation, "companion_id is required")
	}
	return nil
}

// EvolutionDTO - состояние прогрессии и профиль.
type EvolutionDTO struct {
	CompanionID string                       `json:"companion_id"`
	State       progression.ProgressionState `json:"state"`
	Profile     companion.Snapshot           `json:"profile"`
}

// GetEvolutionHandler обрабатывает запрос состояния.
type GetEvolutionHandler struct {
	registry *session.Registry
}

// NewGetEvolutionHandler создаёт обработчик.
func NewGetEvolutionHandler(registry *session.Registry) *GetEvolutionHandler {
	return &GetEvolutionHandler{registry: registry}
}

// Handle выполняет запрос.
func (h *GetEvolutionHandler) Handle(ctx context.Context, q GetEvolutionQuery) (*EvolutionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	sess, err := h.registry.Get(ctx, q.CompanionID)
	if err != nil {
		return nil, fmt.Errorf("get_evolution: %w", err)
	}
	return &EvolutionDTO{
		CompanionID: q.CompanionID,
		State:       sess.System().Evolution(),
		Profile:     sess.Profile().Snapshot(),
	}, nil
}
