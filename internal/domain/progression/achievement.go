package progression

import (
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CONDITIONS
// ══════════════════════════════════════════════════════════════════════════════

// ConditionKind - вид условия достижения.
type ConditionKind string

const (
	// ConditionTrackExperience - опыт трека Track не меньше Threshold.
	ConditionTrackExperience ConditionKind = "track_experience"
	// ConditionLevel - уровень не меньше Threshold.
	ConditionLevel ConditionKind = "level"
	// ConditionStage - стадия не ниже Stage.
	ConditionStage ConditionKind = "stage"
	// ConditionSkillCount - открыто не меньше Threshold навыков.
	ConditionSkillCount ConditionKind = "skill_count"
	// ConditionWellRounded - каждый трек не меньше Threshold.
	ConditionWellRounded ConditionKind = "well_rounded"
	// ConditionPerfectCompanion - максимальный уровень, все треки не меньше
	// Threshold и открыты все навыки каталога.
	ConditionPerfectCompanion ConditionKind = "perfect_companion"
)

// Condition - условие получения достижения (размеченное объединение по Kind).
type Condition struct {
	Kind      ConditionKind `json:"kind" yaml:"kind"`
	Track     Track         `json:"track,omitempty" yaml:"track"`
	Threshold int           `json:"threshold,omitempty" yaml:"threshold"`
	Stage     Stage         `json:"stage,omitempty" yaml:"stage"`
}

func (c Condition) validate() error {
	switch c.Kind {
	case ConditionTrackExperience:
		if !c.Track.IsValid() {
			return fmt.Errorf("unknown track %q", c.Track)
		}
		if c.Threshold < 1 {
			return fmt.Errorf("threshold must be positive")
		}
	case ConditionLevel:
		if c.Threshold < 1 || c.Threshold > MaxLevel {
			return fmt.Errorf("level threshold %d out of [1,%d]", c.Threshold, MaxLevel)
		}
	case ConditionStage:
		if !c.Stage.IsValid() {
			return fmt.Errorf("unknown stage %q", c.Stage)
		}
	case ConditionSkillCount, ConditionWellRounded, ConditionPerfectCompanion:
		if c.Threshold < 0 {
			return fmt.Errorf("negative threshold")
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRewards - награды за достижение.
type AchievementRewards struct {
	Experience       int                `json:"experience" yaml:"experience"`
	SkillPoints      int                `json:"skill_points,omitempty" yaml:"skill_points"`
	PersonalityBoost map[string]float64 `json:"personality_boost,omitempty" yaml:"personality_boost"`
	Abilities        []AbilityID        `json:"abilities,omitempty" yaml:"abilities"`
}

// AchievementDefinition - запись каталога достижений.
type AchievementDefinition struct {
	ID          AchievementID      `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Tier        Tier               `json:"tier" yaml:"tier"`
	Condition   Condition          `json:"condition" yaml:"condition"`
	Rewards     AchievementRewards `json:"rewards" yaml:"rewards"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// AchievementTracker хранит каталог достижений и определяет, какие из них
// выполнены. Чистый оракул: никогда не меняет состояние.
type AchievementTracker struct {
	order      []AchievementID
	defs       map[AchievementID]AchievementDefinition
	skillCount int
}

// NewAchievementTracker проверяет каталог достижений.
// skillCount - размер каталога навыков (для условия perfect_companion).
func NewAchievementTracker(defs []AchievementDefinition, skillCount int) (*AchievementTracker, error) {
	t := &AchievementTracker{
		order:      make([]AchievementID, 0, len(defs)),
		defs:       make(map[AchievementID]AchievementDefinition, len(defs)),
		skillCount: skillCount,
	}

	type span struct{ min, max int }
	spans := make(map[Tier]*span)

	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: achievement with empty id", ErrInvalidCatalog)
		}
		if _, dup := t.defs[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate achievement %q", ErrInvalidCatalog, d.ID)
		}
		if !d.Tier.IsValid() {
			return nil, fmt.Errorf("%w: achievement %q has unknown tier %q", ErrInvalidCatalog, d.ID, d.Tier)
		}
		if err := d.Condition.validate(); err != nil {
			return nil, fmt.Errorf("%w: achievement %q: %v", ErrInvalidCatalog, d.ID, err)
		}
		if d.Rewards.Experience < 0 || d.Rewards.SkillPoints < 0 {
			return nil, fmt.Errorf("%w: achievement %q has negative rewards", ErrInvalidCatalog, d.ID)
		}
		if len(d.Rewards.Abilities) > 0 && !d.Tier.IsMilestone() {
			return nil, fmt.Errorf("%w: %s achievement %q cannot grant abilities", ErrInvalidCatalog, d.Tier, d.ID)
		}

		xp := d.Rewards.Experience
		if s, ok := spans[d.Tier]; ok {
			s.min = min(s.min, xp)
			s.max = max(s.max, xp)
		} else {
			spans[d.Tier] = &span{min: xp, max: xp}
		}

		t.order = append(t.order, d.ID)
		t.defs[d.ID] = d
	}

	// Награды опытом строго растут от уровня к уровню редкости.
	var prev *span
	var prevTier Tier
	for _, tier := range AllTiers() {
		s, ok := spans[tier]
		if !ok {
			continue
		}
		if prev != nil && prev.max >= s.min {
			return nil, fmt.Errorf("%w: %s rewards (max %d) overlap %s rewards (min %d)",
				ErrInvalidCatalog, prevTier, prev.max, tier, s.min)
		}
		prev, prevTier = s, tier
	}

	return t, nil
}

// CheckAchievements возвращает ещё не полученные достижения, условия которых
// выполнены, в порядке каталога.
func (t *AchievementTracker) CheckAchievements(state ProgressionState) []AchievementID {
	var out []AchievementID
	for _, id := range t.order {
		if state.HasAchievement(id) {
			continue
		}
		if t.satisfied(t.defs[id].Condition, state) {
			out = append(out, id)
		}
	}
	return out
}

func (t *AchievementTracker) satisfied(c Condition, s ProgressionState) bool {
	switch c.Kind {
	case ConditionTrackExperience:
		return s.ExperienceByType[c.Track] >= c.Threshold
	case ConditionLevel:
		return s.Level >= c.Threshold
	case ConditionStage:
		return s.Stage.AtLeast(c.Stage)
	case ConditionSkillCount:
		return len(s.UnlockedSkills) >= c.Threshold
	case ConditionWellRounded:
		return allTracksAtLeast(s, c.Threshold)
	case ConditionPerfectCompanion:
		return s.Level >= MaxLevel &&
			allTracksAtLeast(s, c.Threshold) &&
			len(s.UnlockedSkills) >= t.skillCount
	default:
		return false
	}
}

func allTracksAtLeast(s ProgressionState, threshold int) bool {
	for _, tr := range AllTracks() {
		if s.ExperienceByType[tr] < threshold {
			return false
		}
	}
	return true
}

// Achievement возвращает определение достижения.
func (t *AchievementTracker) Achievement(id AchievementID) (AchievementDefinition, error) {
	def, ok := t.defs[id]
	if !ok {
		return AchievementDefinition{}, fmt.Errorf("%w: %q", ErrUnknownAchievement, id)
	}
	return def, nil
}

// AllAchievements возвращает достижения в порядке каталога.
func (t *AchievementTracker) AllAchievements() []AchievementDefinition {
	out := make([]AchievementDefinition, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.defs[id])
	}
	return out
}

// AchievementsByTier возвращает достижения одного уровня редкости.
func (t *AchievementTracker) AchievementsByTier(tier Tier) []AchievementDefinition {
	var out []AchievementDefinition
	for _, id := range t.order {
		if d := t.defs[id]; d.Tier == tier {
			out = append(out, d)
		}
	}
	return out
}

// Count возвращает размер каталога достижений.
func (t *AchievementTracker) Count() int {
	return len(t.order)
}
