package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/pkg/logger"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USE ABILITY COMMAND
// Activates an unlocked ability and starts its cooldown.
// ══════════════════════════════════════════════════════════════════════════════

// Reasons an ability use can be rejected.
const (
	RejectNotUnlocked = "not_unlocked"
	RejectOnCooldown  = "on_cooldown"
)

// UseAbilityCommand contains the data to use an ability.
type UseAbilityCommand struct {
	CompanionID string
	AbilityID   string
}

// Validate validates the command.
func (c UseAbilityCommand) Validate() error {
	if strings.TrimSpace(c.CompanionID) == "" {
		return invalid("UseAbility", "companion_id is required")
	}
	if strings.TrimSpace(c.AbilityID) == "" {
		return invalid("UseAbility", "ability_id is required")
	}
	return nil
}

// UseAbilityResult contains the result of an ability use.
type UseAbilityResult struct {
	CompanionID string
	AbilityID   progression.AbilityID

	Used   bool
	Reason string

	// CooldownUntil is when the ability becomes ready again.
	CooldownUntil time.Time

	// Remaining is the cooldown left right after the call.
	Remaining time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UseAbilityHandler handles the UseAbilityCommand.
type UseAbilityHandler struct {
	persister *Persister
	clock     timeutil.Clock
	log       *logger.Logger
}

// NewUseAbilityHandler creates a new UseAbilityHandler.
func NewUseAbilityHandler(persister *Persister, clock timeutil.Clock, log *logger.Logger) *UseAbilityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UseAbilityHandler{
		persister: persister,
		clock:     timeutil.OrReal(clock),
		log:       log.With(logger.Operation("use_ability")),
	}
}

// Handle executes the use ability command.
func (h *UseAbilityHandler) Handle(ctx context.Context, cmd UseAbilityCommand) (*UseAbilityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("use_ability: validation failed: %w", err)
	}
	id := progression.AbilityID(cmd.AbilityID)

	if _, err := h.persister.Registry().Catalog().Abilities.Ability(id); err != nil {
		return nil, fmt.Errorf("use_ability: %w", err)
	}

	result := &UseAbilityResult{CompanionID: cmd.CompanionID, AbilityID: id}

	err := h.persister.Registry().Exec(ctx, cmd.CompanionID, func(sys *progression.EvolutionSystem) error {
		result.Used = sys.UseAbility(id)

		state := sys.Evolution()
		result.CooldownUntil = state.AbilityCooldowns[id]
		result.Remaining = timeutil.Remaining(result.CooldownUntil, h.clock.Now())

		if !result.Used {
			if state.HasAbility(id) {
				result.Reason = RejectOnCooldown
			} else {
				result.Reason = RejectNotUnlocked
			}
			return nil
		}
		return h.persister.Save(ctx, sys)
	})
	if err != nil {
		return nil, fmt.Errorf("use_ability: %w", err)
	}

	h.log.Debug("ability use handled",
		logger.CompanionID(cmd.CompanionID),
		logger.AbilityID(cmd.AbilityID),
		logger.Bool("used", result.Used),
		logger.Duration("remaining", result.Remaining),
	)
	return result, nil
}
