package progression

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// Метрики взаимодействия, которые передаёт вызывающий код при начислении
// опыта. Эфемерны и никогда не сохраняются. Все сигналы нормализуются перед
// применением формулы, поэтому "плохой" ввод не приводит к ошибке.
// ══════════════════════════════════════════════════════════════════════════════

// Metrics - закрытый набор форм метрик, по одной на трек.
type Metrics interface {
	// Track возвращает трек, к которому относятся метрики.
	Track() Track

	metrics()
}

// ConversationMetrics - метрики одного обмена репликами.
type ConversationMetrics struct {
	// MessageLength - длина сообщения в символах (ограничивается 1000).
	MessageLength int `json:"message_length"`

	// Complexity - сложность темы, [0,1].
	Complexity float64 `json:"complexity"`

	// Engagement - вовлечённость собеседника, [0,1].
	Engagement float64 `json:"engagement"`

	// ResponseQuality - качество ответа компаньона, [0,1].
	ResponseQuality float64 `json:"response_quality"`
}

// EmotionalMetrics - метрики эмоционального момента.
type EmotionalMetrics struct {
	Intensity     float64 `json:"intensity"`
	Empathy       float64 `json:"empathy"`
	Vulnerability float64 `json:"vulnerability"`

	// EmotionsExpressed - число выраженных эмоций (ограничивается 5).
	EmotionsExpressed int `json:"emotions_expressed"`
}

// LearningMetrics - метрики обучения.
type LearningMetrics struct {
	// NewConcepts - число новых понятий (ограничивается 10).
	NewConcepts int `json:"new_concepts"`

	Retention   float64 `json:"retention"`
	Curiosity   float64 `json:"curiosity"`
	Application float64 `json:"application"`
}

// RelationshipMetrics - метрики изменения отношений.
type RelationshipMetrics struct {
	TrustDelta         float64 `json:"trust_delta"`
	IntimacyDelta      float64 `json:"intimacy_delta"`
	ConflictResolution float64 `json:"conflict_resolution"`

	// SharedExperiences - число совместных событий (ограничивается 5).
	SharedExperiences int `json:"shared_experiences"`
}

func (ConversationMetrics) Track() Track { return TrackConversation }
func (EmotionalMetrics) Track() Track    { return TrackEmotional }
func (LearningMetrics) Track() Track     { return TrackLearning }
func (RelationshipMetrics) Track() Track { return TrackRelationship }

func (ConversationMetrics) metrics() {}
func (EmotionalMetrics) metrics()    {}
func (LearningMetrics) metrics()     {}
func (RelationshipMetrics) metrics() {}

// ══════════════════════════════════════════════════════════════════════════════
// NORMALIZATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	maxMessageLength     = 1000
	maxEmotionsExpressed = 5
	maxNewConcepts       = 10
	maxSharedExperiences = 5
)

// unit приводит сигнал к [0,1]; отрицательные значения и NaN дают 0.
func unit(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// capInt приводит целочисленный сигнал к [0,ceiling].
func capInt(v, ceiling int) int {
	switch {
	case v <= 0:
		return 0
	case v >= ceiling:
		return ceiling
	default:
		return v
	}
}

// MetricsForTrack возвращает пустую форму метрик для трека; используется при
// декодировании запросов на внешних границах.
func MetricsForTrack(t Track) (Metrics, error) {
	switch t {
	case TrackConversation:
		return &ConversationMetrics{}, nil
	case TrackEmotional:
		return &EmotionalMetrics{}, nil
	case TrackLearning:
		return &LearningMetrics{}, nil
	case TrackRelationship:
		return &RelationshipMetrics{}, nil
	default:
		return nil, ErrUnknownTrack
	}
}
