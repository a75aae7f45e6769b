package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION EVENTS
// Закрытый набор событий оркестратора. Подписчик различает их через type switch.
// ══════════════════════════════════════════════════════════════════════════════

// Event - событие прогрессии компаньона.
type Event interface {
	// Kind возвращает стабильное имя события.
	Kind() string
	// At возвращает момент события.
	At() time.Time

	progressionEvent()
}

// Имена событий.
const (
	KindExperienceGained    = "experience-gained"
	KindLevelUp             = "level-up"
	KindStageEvolved        = "stage-evolved"
	KindSkillUnlocked       = "skill-unlocked"
	KindAchievementUnlocked = "achievement-unlocked"
	KindAbilityUsed         = "ability-used"
	KindEvolutionReset      = "evolution-reset"
)

// ExperienceGained - начислен опыт (одно событие на вызов AddExperience).
type ExperienceGained struct {
	Track      Track
	Amount     int
	OccurredAt time.Time
}

// LevelUp - повышение уровня (по событию на каждый уровень).
type LevelUp struct {
	OldLevel   int
	NewLevel   int
	OccurredAt time.Time
}

// StageAdvanced - переход в новую стадию эволюции.
type StageAdvanced struct {
	OldStage   Stage
	NewStage   Stage
	OccurredAt time.Time
}

// SkillUnlocked - открыт навык.
type SkillUnlocked struct {
	Skill      SkillDefinition
	OccurredAt time.Time
}

// AchievementUnlocked - получено достижение.
type AchievementUnlocked struct {
	Achievement AchievementDefinition
	OccurredAt  time.Time
}

// AbilityUsed - применена способность.
type AbilityUsed struct {
	Ability        AbilityDefinition
	CooldownExpiry time.Time
	OccurredAt     time.Time
}

// EvolutionReset - прогрессия сброшена в начальное состояние.
type EvolutionReset struct {
	OccurredAt time.Time
}

func (ExperienceGained) Kind() string    { return KindExperienceGained }
func (LevelUp) Kind() string             { return KindLevelUp }
func (StageAdvanced) Kind() string       { return KindStageEvolved }
func (SkillUnlocked) Kind() string       { return KindSkillUnlocked }
func (AchievementUnlocked) Kind() string { return KindAchievementUnlocked }
func (AbilityUsed) Kind() string         { return KindAbilityUsed }
func (EvolutionReset) Kind() string      { return KindEvolutionReset }

func (e ExperienceGained) At() time.Time    { return e.OccurredAt }
func (e LevelUp) At() time.Time             { return e.OccurredAt }
func (e StageAdvanced) At() time.Time       { return e.OccurredAt }
func (e SkillUnlocked) At() time.Time       { return e.OccurredAt }
func (e AchievementUnlocked) At() time.Time { return e.OccurredAt }
func (e AbilityUsed) At() time.Time         { return e.OccurredAt }
func (e EvolutionReset) At() time.Time      { return e.OccurredAt }

func (ExperienceGained) progressionEvent()    {}
func (LevelUp) progressionEvent()             {}
func (StageAdvanced) progressionEvent()       {}
func (SkillUnlocked) progressionEvent()       {}
func (AchievementUnlocked) progressionEvent() {}
func (AbilityUsed) progressionEvent()         {}
func (EvolutionReset) progressionEvent()      {}
