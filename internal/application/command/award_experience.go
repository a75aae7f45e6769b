package command

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD EXPERIENCE COMMAND
// Awards experience for one interaction. Level-ups, stage transitions and
// achievements triggered by the award are applied in the same call and
// reported in the result.
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceCommand contains the data to award experience.
type AwardExperienceCommand struct {
	// CompanionID identifies the companion.
	CompanionID string

	// Track is the experience track: conversation, emotional, learning, relationship.
	Track string

	// Metrics describe the interaction. Nil awards the minimum of 1 XP.
	Metrics progression.Metrics

	// Multiplier is an optional caller bonus. Zero means none.
	Multiplier float64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AwardExperienceCommand) Validate() error {
	if strings.TrimSpace(c.CompanionID) == "" {
		return invalid("AwardExperience", "companion_id is required")
	}
	if _, err := progression.ParseTrack(c.Track); err != nil {
		return err
	}
	if c.Multiplier < 0 || math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0) {
		return invalid("AwardExperience", "multiplier must be a non-negative number")
	}
	return nil
}

// AwardExperienceResult contains the result of an award.
type AwardExperienceResult struct {
	CompanionID string
	Track       progression.Track

	// Amount is the XP credited by the interaction itself, without rewards.
	Amount int

	Level        int
	Stage        progression.Stage
	LevelsGained int

	// StageEvolved is set when the award moved the companion to a new stage.
	StageEvolved progression.Stage

	NewAchievements []progression.AchievementID

	// Events lists emitted event kinds in emission order.
	Events []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceHandler handles the AwardExperienceCommand.
type AwardExperienceHandler struct {
	persister *Persister
	log       *logger.Logger
}

// NewAwardExperienceHandler creates a new AwardExperienceHandler.
func NewAwardExperienceHandler(persister *Persister, log *logger.Logger) *AwardExperienceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AwardExperienceHandler{
		persister: persister,
		log:       log.With(logger.Operation("award_experience")),
	}
}

// Handle executes the award experience command.
func (h *AwardExperienceHandler) Handle(ctx context.Context, cmd AwardExperienceCommand) (*AwardExperienceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_experience: validation failed: %w", err)
	}
	track := progression.Track(cmd.Track)


	result := &AwardExperienceResult{CompanionID: cmd.CompanionID, Track: track}

	err := h.persister.Registry().Exec(ctx, cmd.CompanionID, func(sys *progression.EvolutionSystem) error {
		events, stop := collect(sys)
		var opts []progression.AwardOption
		if cmd.Multiplier > 0 {
			opts = append(opts, progression.WithMultiplier(cmd.Multiplier))
		}
		amount, err := sys.AddExperience(track, cmd.Metrics, opts...)
		stop()
		if err != nil {
			return err
		}

		stats := sys.Stats()
		result.Amount = amount
		result.Level = stats.Level
		result.Stage = stats.Stage
		result.LevelsGained = events.levels
		result.StageEvolved = events.stage
		result.NewAchievements = events.achievements
		result.Events = events.kinds

		return h.persister.Save(ctx, sys)
	})
	if err != nil {
		if shared.IsValidation(err) {
			return nil, fmt.Errorf("award_experience: validation failed: %w", err)
		}
		return nil, fmt.Errorf("award_experience: %w", err)
	}

	h.log.Info("experience awarded",
		logger.CompanionID(cmd.CompanionID),
		logger.Track(string(track)),
		logger.XPAmount(result.Amount),
		logger.CompanionLevel(result.Level),
		logger.String("correlation_id", cmd.CorrelationID),
	)
	return result, nil
}
