package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK SKILL COMMAND
// Spends one skill point on a skill. A rejected unlock is a normal outcome,
// reported with a reason; only an unknown skill id is an error.
// ══════════════════════════════════════════════════════════════════════════════

// Reasons an unlock can be rejected.
const (
	RejectAlreadyUnlocked = "already_unlocked"
	RejectNoSkillPoints   = "no_skill_points"
	RejectRequirements    = "requirements_not_met"
)

// UnlockSkillCommand contains the data to unlock a skill.
type UnlockSkillCommand struct {
	CompanionID string
	SkillID     string
}

// Validate validates the command.
func (c UnlockSkillCommand) Validate() error {
	if strings.TrimSpace(c.CompanionID) == "" {
		return invalid("UnlockSkill", "companion_id is required")
	}
	if strings.TrimSpace(c.SkillID) == "" {
		return invalid("UnlockSkill", "skill_id is required")
	}
	return nil
}

// UnlockSkillResult contains the result of an unlock attempt.
type UnlockSkillResult struct {
	CompanionID string
	SkillID     progression.SkillID

	// Unlocked reports whether the skill was unlocked by this call.
	Unlocked bool

	// Reason explains a rejection. Empty when Unlocked.
	Reason string

	AvailableSkillPoints int
	NewAchievements      []progression.AchievementID
	Events               []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UnlockSkillHandler handles the UnlockSkillCommand.
type UnlockSkillHandler struct {
	persister *Persister
	log       *logger.Logger
}

// NewUnlockSkillHandler creates a new UnlockSkillHandler.
func NewUnlockSkillHandler(persister *Persister, log *logger.Logger) *UnlockSkillHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UnlockSkillHandler{
		persister: persister,
		log:       log.With(logger.Operation("unlock_skill")),
	}
}

// Handle executes the unlock skill command.
func (h *UnlockSkillHandler) Handle(ctx context.Context, cmd UnlockSkillCommand) (*UnlockSkillResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unlock_skill: validation failed: %w", err)
	}
	id := progression.SkillID(cmd.SkillID)

	if _, err := h.persister.Registry().Catalog().Skills.Skill(id); err != nil {
		return nil, fmt.Errorf("unlock_skill: %w", err)
	}

	result := &UnlockSkillResult{CompanionID: cmd.CompanionID, SkillID: id}

	err := h.persister.Registry().Exec(ctx, cmd.CompanionID, func(sys *progression.EvolutionSystem) error {
		before := sys.Evolution()

		events, stop := collect(sys)
		unlocked := sys.UnlockSkill(id)
		stop()

		result.Unlocked = unlocked
		result.AvailableSkillPoints = sys.Stats().AvailableSkillPoints
		if !unlocked {
			result.Reason = rejectReason(before, id)
			return nil
		}
		result.NewAchievements = events.achievements
		result.Events = events.kinds
		return h.persister.Save(ctx, sys)
	})
	if err != nil {
		return nil, fmt.Errorf("unlock_skill: %w", err)
	}

	if result.Unlocked {
		h.log.Info("skill unlocked", logger.CompanionID(cmd.CompanionID), logger.SkillID(cmd.SkillID))
	} else {
		h.log.Debug("skill unlock rejected",
			logger.CompanionID(cmd.CompanionID),
			logger.SkillID(cmd.SkillID),
			logger.String("reason", result.Reason),
		)
	}
	return result, nil
}

func rejectReason(s progression.ProgressionState, id progression.SkillID) string {
	switch {
	case s.HasSkill(id):
		return RejectAlreadyUnlocked
	case s.AvailableSkillPoints < 1:
		return RejectNoSkillPoints
	default:
		return RejectRequirements
	}
}
