package progression

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// ExperienceCalculator переводит метрики взаимодействия в награду опытом.
// Чистая функция без состояния.
type ExperienceCalculator struct{}

// NewExperienceCalculator создаёт калькулятор опыта.
func NewExperienceCalculator() *ExperienceCalculator {
	return &ExperienceCalculator{}
}

// LevelMultiplier возвращает множитель уровня: 1 + (level-1) * 0.10.
func LevelMultiplier(level int) float64 {
	if level < 1 {
		level = 1
	}
	return 1 + float64(level-1)*0.10
}

// Calculate вычисляет награду опытом для трека.
//
// Отсутствие метрик (nil) означает "нет измеримого взаимодействия" и даёт 1.
// Результат всегда в диапазоне [1, track.MaxAward()]. Ошибка возвращается
// только для неизвестного трека или метрик чужого трека.
func (c *ExperienceCalculator) Calculate(track Track, m Metrics, level int, multiplier float64) (int, error) {
	if !track.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	if isNilMetrics(m) {
		return 1, nil
	}
	if m.Track() != track {
		return 0, fmt.Errorf("%w: %s metrics for %s track", ErrMetricsMismatch, m.Track(), track)
	}

	base := baseExperience(m)

	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier <= 0 {
		multiplier = 1
	}

	raw := base * LevelMultiplier(level) * multiplier
	award := int(math.Round(raw))

	if award < 1 {
		award = 1
	}
	if ceiling := track.MaxAward(); award > ceiling {
		award = ceiling
	}
	return award, nil
}

// baseExperience применяет взвешенную формулу трека к нормализованным сигналам.
func baseExperience(m Metrics) float64 {
	switch v := m.(type) {
	case ConversationMetrics:
		return conversationBase(v)
	case *ConversationMetrics:
		return conversationBase(*v)
	case EmotionalMetrics:
		return emotionalBase(v)
	case *EmotionalMetrics:
		return emotionalBase(*v)
	case LearningMetrics:
		return learningBase(v)
	case *LearningMetrics:
		return learningBase(*v)
	case RelationshipMetrics:
		return relationshipBase(v)
	case *RelationshipMetrics:
		return relationshipBase(*v)
	default:
		return 0
	}
}

// conversationBase: длина (до 40) + сложность*30 + вовлечённость*20,
// затем множитель качества ответа в [0.5, 1.5].
func conversationBase(m ConversationMetrics) float64 {
	length := 40 * float64(capInt(m.MessageLength, maxMessageLength)) / maxMessageLength
	base := length + unit(m.Complexity)*30 + unit(m.Engagement)*20
	quality := 0.5 + unit(m.ResponseQuality)
	return base * quality
}

// emotionalBase: интенсивность*25 + эмпатия*25 + открытость*15 + эмоции*3 (максимум 80).
func emotionalBase(m EmotionalMetrics) float64 {
	return unit(m.Intensity)*25 +
		unit(m.Empathy)*25 +
		unit(m.Vulnerability)*15 +
		float64(capInt(m.EmotionsExpressed, maxEmotionsExpressed))*3
}

// learningBase: понятия*2 + запоминание*15 + любопытство*10 + применение*15 (максимум 60).
func learningBase(m LearningMetrics) float64 {
	return float64(capInt(m.NewConcepts, maxNewConcepts))*2 +
		unit(m.Retention)*15 +
		unit(m.Curiosity)*10 +
		unit(m.Application)*15
}

// relationshipBase: доверие*15 + близость*15 + разрешение конфликта*10 + события*2 (максимум 50).
func relationshipBase(m RelationshipMetrics) float64 {
	return unit(m.TrustDelta)*15 +
		unit(m.IntimacyDelta)*15 +
		unit(m.ConflictResolution)*10 +
		float64(capInt(m.SharedExperiences, maxSharedExperiences))*2
}

// isNilMetrics ловит и nil-интерфейс, и типизированный nil-указатель.
func isNilMetrics(m Metrics) bool {
	switch v := m.(type) {
	case nil:
		return true
	case *ConversationMetrics:
		return v == nil
	case *EmotionalMetrics:
		return v == nil
	case *LearningMetrics:
		return v == nil
	case *RelationshipMetrics:
		return v == nil
	default:
		return false
	}
}
