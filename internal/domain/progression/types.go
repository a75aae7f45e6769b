package progression

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// SkillID - идентификатор навыка в каталоге.
type SkillID string

// AchievementID - идентификатор достижения в каталоге.
type AchievementID string

// AbilityID - идентификатор способности в каталоге.
type AbilityID string

// ══════════════════════════════════════════════════════════════════════════════
// TRACKS (Треки опыта)
// ══════════════════════════════════════════════════════════════════════════════

// Track - один из четырёх независимых треков опыта.
type Track string

const (
	// TrackConversation - опыт за содержательные диалоги.
	TrackConversation Track = "conversation"
	// TrackEmotional - опыт за эмоциональную вовлечённость.
	TrackEmotional Track = "emotional"
	// TrackLearning - опыт за изучение нового.
	TrackLearning Track = "learning"
	// TrackRelationship - опыт за развитие отношений.
	TrackRelationship Track = "relationship"
)

// AllTracks возвращает треки в каноническом порядке.
func AllTracks() []Track {
	return []Track{TrackConversation, TrackEmotional, TrackLearning, TrackRelationship}
}

// IsValid проверяет, что трек известен.
func (t Track) IsValid() bool {
	switch t {
	case TrackConversation, TrackEmotional, TrackLearning, TrackRelationship:
		return true
	default:
		return false
	}
}

// MaxAward возвращает максимальную награду за одно начисление по треку.
func (t Track) MaxAward() int {
	switch t {
	case TrackConversation:
		return 100
	case TrackEmotional:
		return 80
	case TrackLearning:
		return 60
	case TrackRelationship:
		return 50
	default:
		return 0
	}
}

// ParseTrack разбирает строку в Track.
func ParseTrack(s string) (Track, error) {
	t := Track(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTrack, s)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGES (Стадии эволюции)
// ══════════════════════════════════════════════════════════════════════════════

// Stage - крупная фаза эволюции, производная от уровня.
type Stage string

const (
	StageNascent      Stage = "nascent"
	StageDeveloping   Stage = "developing"
	StageMaturing     Stage = "maturing"
	StageEvolved      Stage = "evolved"
	StageTranscendent Stage = "transcendent"
)

// AllStages возвращает стадии по возрастанию.
func AllStages() []Stage {
	return []Stage{StageNascent, StageDeveloping, StageMaturing, StageEvolved, StageTranscendent}
}

// Rank возвращает порядковый номер стадии (nascent = 0). Для неизвестной стадии -1.
func (s Stage) Rank() int {
	switch s {
	case StageNascent:
		return 0
	case StageDeveloping:
		return 1
	case StageMaturing:
		return 2
	case StageEvolved:
		return 3
	case StageTranscendent:
		return 4
	default:
		return -1
	}
}

// IsValid проверяет, что стадия известна.
func (s Stage) IsValid() bool {
	return s.Rank() >= 0
}

// AtLeast возвращает true, если стадия s не ниже other.
func (s Stage) AtLeast(other Stage) bool {
	return s.Rank() >= other.Rank()
}

// StageForLevel вычисляет стадию по уровню.
//
//	1      -> nascent
//	2-3    -> developing
//	4-6    -> maturing
//	7-9    -> evolved
//	10     -> transcendent
func StageForLevel(level int) Stage {
	switch {
	case level >= MaxLevel:
		return StageTranscendent
	case level >= 7:
		return StageEvolved
	case level >= 4:
		return StageMaturing
	case level >= 2:
		return StageDeveloping
	default:
		return StageNascent
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// SkillCategory - ветка дерева навыков.
type SkillCategory string

const (
	CategoryPersonality   SkillCategory = "personality"
	CategoryCommunication SkillCategory = "communication"
	CategoryMemory        SkillCategory = "memory"
	CategoryRelationship  SkillCategory = "relationship"
)

// IsValid проверяет, что категория известна.
func (c SkillCategory) IsValid() bool {
	switch c {
	case CategoryPersonality, CategoryCommunication, CategoryMemory, CategoryRelationship:
		return true
	default:
		return false
	}
}

// Track возвращает трек, которому засчитывается опыт наград, полученных
// при открытии навыка этой ветки.
func (c SkillCategory) Track() Track {
	switch c {
	case CategoryPersonality:
		return TrackEmotional
	case CategoryCommunication:
		return TrackConversation
	case CategoryMemory:
		return TrackLearning
	case CategoryRelationship:
		return TrackRelationship
	default:
		return TrackConversation
	}
}

// Tier - уровень редкости достижения.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierMaster   Tier = "master"
)

// AllTiers возвращает уровни редкости по возрастанию.
func AllTiers() []Tier {
	return []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierMaster}
}

// Rank возвращает порядковый номер уровня редкости (bronze = 0). Для неизвестного -1.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 0
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	case TierMaster:
		return 4
	default:
		return -1
	}
}

// IsValid проверяет, что уровень редкости известен.
func (t Tier) IsValid() bool {
	return t.Rank() >= 0
}

// IsMilestone возвращает true для gold и выше. Только такие достижения
// выдают способности и записываются в память компаньона.
func (t Tier) IsMilestone() bool {
	return t.Rank() >= TierGold.Rank()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxLevel - максимальный уровень компаньона.
	MaxLevel = 10

	// SkillPointsPerLevel - очки навыков за каждый полученный уровень.
	SkillPointsPerLevel = 1
)

// LevelThreshold возвращает опыт, нужный для перехода с level на level+1.
func LevelThreshold(level int) int {
	if level < 1 {
		level = 1
	}
	return 100 * level
}

// CumulativeThreshold возвращает суммарный опыт, потраченный на достижение level.
func CumulativeThreshold(level int) int {
	total := 0
	for l := 1; l < level && l < MaxLevel; l++ {
		total += LevelThreshold(l)
	}
	return total
}
