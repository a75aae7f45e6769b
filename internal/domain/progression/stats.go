package progression

import (
	"time"

	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// AbilityStatus - доступность способности на момент расчёта.
type AbilityStatus struct {
	ID        AbilityID     `json:"id" yaml:"id"`
	Ready     bool          `json:"ready" yaml:"ready"`
	Remaining time.Duration `json:"remaining" yaml:"remaining"`
	Display   string        `json:"display" yaml:"display"`
}

// EvolutionStats - производная сводка прогрессии. Всегда вычисляется
// заново из текущего состояния.
type EvolutionStats struct {
	Level                int             `json:"level" yaml:"level"`
	Stage                Stage           `json:"stage" yaml:"stage"`
	Experience           int             `json:"experience" yaml:"experience"`
	ExperienceToNext     int             `json:"experience_to_next" yaml:"experience_to_next"`
	ProgressPercent      float64         `json:"progress_percent" yaml:"progress_percent"`
	TotalExperience      int             `json:"total_experience" yaml:"total_experience"`
	ExperienceByType     map[Track]int   `json:"experience_by_type" yaml:"experience_by_type"`
	SkillCount           int             `json:"skill_count" yaml:"skill_count"`
	AchievementCount     int             `json:"achievement_count" yaml:"achievement_count"`
	AvailableSkillPoints int             `json:"available_skill_points" yaml:"available_skill_points"`
	AvailableAbilities   []AbilityID     `json:"available_abilities" yaml:"available_abilities"`
	Abilities            []AbilityStatus `json:"abilities" yaml:"abilities"`
	MaxLevelReached      bool            `json:"max_level_reached" yaml:"max_level_reached"`
}

func computeStats(s ProgressionState, now time.Time) EvolutionStats {
	st := EvolutionStats{
		Level:                s.Level,
		Stage:                s.Stage,
		Experience:           s.Experience,
		TotalExperience:      s.TotalExperience(),
		ExperienceByType:     make(map[Track]int, len(s.ExperienceByType)),
		SkillCount:           len(s.UnlockedSkills),
		AchievementCount:     len(s.UnlockedAchievements),
		AvailableSkillPoints: s.AvailableSkillPoints,
		AvailableAbilities:   []AbilityID{},
		Abilities:            []AbilityStatus{},
		MaxLevelReached:      s.Level >= MaxLevel,
	}
	for k, v := range s.ExperienceByType {
		st.ExperienceByType[k] = v
	}

	if st.MaxLevelReached {
		st.ProgressPercent = 100
	} else {
		threshold := LevelThreshold(s.Level)
		st.ExperienceToNext = threshold - s.Experience
		st.ProgressPercent = float64(s.Experience) * 100 / float64(threshold)
	}

	for _, id := range sortedAbilities(s.UnlockedAbilities) {
		remaining := timeutil.Remaining(s.AbilityCooldowns[id], now)
		status := AbilityStatus{
			ID:        id,
			Ready:     remaining == 0,
			Remaining: remaining,
			Display:   timeutil.FormatRemaining(remaining),
		}
		if status.Ready {
			st.AvailableAbilities = append(st.AvailableAbilities, id)
		}
		st.Abilities = append(st.Abilities, status)
	}

	return st
}
