package progression

import (
	"fmt"
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionState - полное состояние прогрессии одного компаньона.
// Простые данные: сохраняются целиком как JSON-документ.
type ProgressionState struct {
	// Level - текущий уровень, [1, MaxLevel].
	Level int `json:"level"`

	// Experience - опыт внутри текущего уровня.
	Experience int `json:"experience"`

	// ExperienceByType - суммарный опыт за всё время по трекам.
	ExperienceByType map[Track]int `json:"experience_by_type"`

	// Stage - стадия эволюции, не убывает.
	Stage Stage `json:"stage"`

	UnlockedSkills       []SkillID       `json:"unlocked_skills"`
	AvailableSkillPoints int             `json:"available_skill_points"`
	UnlockedAchievements []AchievementID `json:"unlocked_achievements"`
	UnlockedAbilities    []AbilityID     `json:"unlocked_abilities"`

	// AbilityCooldowns - момент окончания перезарядки способности.
	AbilityCooldowns map[AbilityID]time.Time `json:"ability_cooldowns"`

	// PersonalityGrowth - накопленные изменения черт характера.
	PersonalityGrowth map[string]float64 `json:"personality_growth"`

	// ExperienceMultipliers - множители опыта от навыков (произведение по треку).
	ExperienceMultipliers map[Track]float64 `json:"experience_multipliers"`
}

// NewProgressionState создаёт начальное состояние: уровень 1, стадия nascent.
func NewProgressionState() ProgressionState {
	byType := make(map[Track]int, len(AllTracks()))
	for _, t := range AllTracks() {
		byType[t] = 0
	}
	return ProgressionState{
		Level:                 1,
		ExperienceByType:      byType,
		Stage:                 StageNascent,
		UnlockedSkills:        []SkillID{},
		UnlockedAchievements:  []AchievementID{},
		UnlockedAbilities:     []AbilityID{},
		AbilityCooldowns:      map[AbilityID]time.Time{},
		PersonalityGrowth:     map[string]float64{},
		ExperienceMultipliers: map[Track]float64{},
	}
}

// Clone возвращает глубокую копию состояния.
func (s ProgressionState) Clone() ProgressionState {
	out := s

	out.ExperienceByType = make(map[Track]int, len(s.ExperienceByType))
	for k, v := range s.ExperienceByType {
		out.ExperienceByType[k] = v
	}
	out.UnlockedSkills = append([]SkillID{}, s.UnlockedSkills...)
	out.UnlockedAchievements = append([]AchievementID{}, s.UnlockedAchievements...)
	out.UnlockedAbilities = append([]AbilityID{}, s.UnlockedAbilities...)

	out.AbilityCooldowns = make(map[AbilityID]time.Time, len(s.AbilityCooldowns))
	for k, v := range s.AbilityCooldowns {
		out.AbilityCooldowns[k] = v
	}
	out.PersonalityGrowth = make(map[string]float64, len(s.PersonalityGrowth))
	for k, v := range s.PersonalityGrowth {
		out.PersonalityGrowth[k] = v
	}
	out.ExperienceMultipliers = make(map[Track]float64, len(s.ExperienceMultipliers))
	for k, v := range s.ExperienceMultipliers {
		out.ExperienceMultipliers[k] = v
	}
	return out
}

// Snapshot возвращает копию с отсортированным списком навыков.
func (s ProgressionState) Snapshot() ProgressionState {
	out := s.Clone()
	sort.Slice(out.UnlockedSkills, func(i, j int) bool { return out.UnlockedSkills[i] < out.UnlockedSkills[j] })
	return out
}

// TotalExperience возвращает сумму опыта по всем трекам.
func (s ProgressionState) TotalExperience() int {
	total := 0
	for _, v := range s.ExperienceByType {
		total += v
	}
	return total
}

// HasSkill проверяет, открыт ли навык.
func (s ProgressionState) HasSkill(id SkillID) bool {
	for _, sk := range s.UnlockedSkills {
		if sk == id {
			return true
		}
	}
	return false
}

// HasAchievement проверяет, получено ли достижение.
func (s ProgressionState) HasAchievement(id AchievementID) bool {
	for _, a := range s.UnlockedAchievements {
		if a == id {
			return true
		}
	}
	return false
}

// HasAbility проверяет, доступна ли способность.
func (s ProgressionState) HasAbility(id AbilityID) bool {
	for _, a := range s.UnlockedAbilities {
		if a == id {
			return true
		}
	}
	return false
}

// Multiplier возвращает множитель опыта трека (1, если навыки его не меняли).
func (s ProgressionState) Multiplier(t Track) float64 {
	if m, ok := s.ExperienceMultipliers[t]; ok && m > 0 {
		return m
	}
	return 1
}

// SkillSnapshot возвращает проекцию состояния, нужную оракулу навыков.
func (s ProgressionState) SkillSnapshot() SkillSnapshot {
	unlocked := make(map[SkillID]bool, len(s.UnlockedSkills))
	for _, id := range s.UnlockedSkills {
		unlocked[id] = true
	}
	byType := make(map[Track]int, len(s.ExperienceByType))
	for k, v := range s.ExperienceByType {
		byType[k] = v
	}
	return SkillSnapshot{
		Level:            s.Level,
		ExperienceByType: byType,
		Unlocked:         unlocked,
	}
}

// Validate проверяет инварианты сохранённого состояния.
func (s ProgressionState) Validate() error {
	if s.Level < 1 || s.Level > MaxLevel {
		return fmt.Errorf("%w: level %d out of range", ErrInvalidState, s.Level)
	}
	if s.Experience < 0 {
		return fmt.Errorf("%w: negative experience", ErrInvalidState)
	}
	if s.AvailableSkillPoints < 0 {
		return fmt.Errorf("%w: negative skill points", ErrInvalidState)
	}
	if !s.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidState, s.Stage)
	}
	if s.Stage.Rank() < StageForLevel(s.Level).Rank() {
		return fmt.Errorf("%w: stage %s below level %d", ErrInvalidState, s.Stage, s.Level)
	}
	for t, v := range s.ExperienceByType {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown track %q", ErrInvalidState, t)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative %s experience", ErrInvalidState, t)
		}
	}
	if got, want := s.TotalExperience(), CumulativeThreshold(s.Level)+s.Experience; got != want {
		return fmt.Errorf("%w: track total %d does not match level accounting %d", ErrInvalidState, got, want)
	}
	if dup := firstDuplicate(s.UnlockedSkills); dup != "" {
		return fmt.Errorf("%w: duplicate skill %q", ErrInvalidState, dup)
	}
	if dup := firstDuplicate(s.UnlockedAchievements); dup != "" {
		return fmt.Errorf("%w: duplicate achievement %q", ErrInvalidState, dup)
	}
	return nil
}

// normalize заполняет nil-коллекции после декодирования.
func (s *ProgressionState) normalize() {
	if s.ExperienceByType == nil {
		s.ExperienceByType = map[Track]int{}
	}
	for _, t := range AllTracks() {
		if _, ok := s.ExperienceByType[t]; !ok {
			s.ExperienceByType[t] = 0
		}
	}
	if s.UnlockedSkills == nil {
		s.UnlockedSkills = []SkillID{}
	}
	if s.UnlockedAchievements == nil {
		s.UnlockedAchievements = []AchievementID{}
	}
	if s.UnlockedAbilities == nil {
		s.UnlockedAbilities = []AbilityID{}
	}
	if s.AbilityCooldowns == nil {
		s.AbilityCooldowns = map[AbilityID]time.Time{}
	}
	if s.PersonalityGrowth == nil {
		s.PersonalityGrowth = map[string]float64{}
	}
	if s.ExperienceMultipliers == nil {
		s.ExperienceMultipliers = map[Track]float64{}
	}
}

func firstDuplicate[T ~string](ids []T) T {
	seen := make(map[T]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}
