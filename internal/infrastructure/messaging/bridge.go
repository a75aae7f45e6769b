package messaging

import (
	"log/slog"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// ToShared converts a progression event into the bus representation.
// Returns nil for event types the bus does not carry.
func ToShared(companionID string, ev progression.Event) shared.Event {
	base := func(t shared.EventType) shared.BaseEvent {
		return shared.NewBaseEvent(t, companionID, ev.At())
	}

	switch e := ev.(type) {
	case progression.ExperienceGained:
		return shared.ExperienceGainedEvent{
			BaseEvent:   base(shared.EventExperienceGained),
			CompanionID: companionID,
			Track:       string(e.Track),
			Amount:      e.Amount,
		}
	case progression.LevelUp:
		return shared.LevelUpEvent{
			BaseEvent:   base(shared.EventLevelUp),
			CompanionID: companionID,
			OldLevel:    e.OldLevel,
			NewLevel:    e.NewLevel,
		}
	case progression.StageAdvanced:
		return shared.StageEvolvedEvent{
			BaseEvent:   base(shared.EventStageEvolved),
			CompanionID: companionID,
			OldStage:    string(e.OldStage),
			NewStage:    string(e.NewStage),
		}
	case progression.SkillUnlocked:
		return shared.SkillUnlockedEvent{
			BaseEvent:   base(shared.EventSkillUnlocked),
			CompanionID: companionID,
			SkillID:     string(e.Skill.ID),
			SkillName:   e.Skill.Name,
			Category:    string(e.Skill.Category),
		}
	case progression.AchievementUnlocked:
		return shared.AchievementUnlockedEvent{
			BaseEvent:       base(shared.EventAchievementUnlocked),
			CompanionID:     companionID,
			AchievementID:   string(e.Achievement.ID),
			AchievementName: e.Achievement.Name,
			Tier:            string(e.Achievement.Tier),
		}
	case progression.AbilityUsed:
		return shared.AbilityUsedEvent{
			BaseEvent:      base(shared.EventAbilityUsed),
			CompanionID:    companionID,
			AbilityID:      string(e.Ability.ID),
			AbilityName:    e.Ability.Name,
			CooldownExpiry: e.CooldownExpiry,
		}
	case progression.EvolutionReset:
		return shared.EvolutionResetEvent{
			BaseEvent:   base(shared.EventEvolutionReset),
			CompanionID: companionID,
		}
	default:
		return nil
	}
}

// Bridge forwards every event of sys to pub and returns the unsubscribe func.
func Bridge(sys *progression.EvolutionSystem, pub shared.EventPublisher, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	id := sys.CompanionID()
	return sys.Subscribe(func(ev progression.Event) {
		out := ToShared(id, ev)
		if out == nil {
			return
		}
		if err := pub.Publish(out); err != nil {
			logger.Error("failed to publish progression event",
				"companion_id", id,
				"event", ev.Kind(),
				"error", err,
			)
		}
	})
}
