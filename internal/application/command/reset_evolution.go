package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET EVOLUTION COMMAND
// Returns a companion to level 1 / nascent. With PurgeHistory the journal is
// deleted first, so the reset entry becomes the first entry of the new history.
// ══════════════════════════════════════════════════════════════════════════════

// ResetEvolutionCommand contains the data to reset a companion.
type ResetEvolutionCommand struct {
	CompanionID  string
	PurgeHistory bool
}

// Validate validates the command.
func (c ResetEvolutionCommand) Validate() error {
	if strings.TrimSpace(c.CompanionID) == "" {
		return invalid("ResetEvolution", "companion_id is required")
	}
	return nil
}

// ResetEvolutionResult contains the result of a reset.
type ResetEvolutionResult struct {
	CompanionID   string
	PreviousLevel int
	PreviousStage progression.Stage
	HistoryPurged bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ResetEvolutionHandler handles the ResetEvolutionCommand.
type ResetEvolutionHandler struct {
	persister *Persister
	log       *logger.Logger
}

// NewResetEvolutionHandler creates a new ResetEvolutionHandler.
func NewResetEvolutionHandler(persister *Persister, log *logger.Logger) *ResetEvolutionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ResetEvolutionHandler{
		persister: persister,
		log:       log.With(logger.Operation("reset_evolution")),
	}
}

// Handle executes the reset command.
func (h *ResetEvolutionHandler) Handle(ctx context.Context, cmd ResetEvolutionCommand) (*ResetEvolutionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reset_evolution: validation failed: %w", err)
	}


	result := &ResetEvolutionResult{CompanionID: cmd.CompanionID}

	err := h.persister.Registry().Exec(ctx, cmd.CompanionID, func(sys *progression.EvolutionSystem) error {
		before := sys.Stats()
		result.PreviousLevel = before.Level
		result.PreviousStage = before.Stage

		if cmd.PurgeHistory {
			if err := h.persister.Repository().Delete(ctx, cmd.CompanionID); err != nil {
				return fmt.Errorf("purge history: %w", err)
			}
			result.HistoryPurged = true
		}

		sys.Reset()
		return h.persister.Save(ctx, sys)
	})
	if err != nil {
		return nil, fmt.Errorf("reset_evolution: %w", err)
	}

	h.log.Info("evolution reset",
		logger.CompanionID(cmd.CompanionID),
		logger.Int("previous_level", result.PreviousLevel),
		logger.Bool("history_purged", result.HistoryPurged),
	)
	return result, nil
}
