// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types published on the application event bus.
const (
	// Progression events
	EventExperienceGained    EventType = "progression.experience_gained"
	EventLevelUp             EventType = "progression.level_up"
	EventStageEvolved        EventType = "progression.stage_evolved"
	EventSkillUnlocked       EventType = "progression.skill_unlocked"
	EventAchievementUnlocked EventType = "progression.achievement_unlocked"
	EventAbilityUsed         EventType = "progression.ability_used"
	EventEvolutionReset      EventType = "progression.reset"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// ExperienceGainedEvent is emitted when a companion is awarded experience.
type ExperienceGainedEvent struct {
	BaseEvent
	CompanionID string `json:"companion_id"`
	Track       string `json:"track"`
	Amount      int    `json:"amount"`
}

// Payload implements Event interface.
func (e ExperienceGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id": e.CompanionID,
		"track":        e.Track,
		"amount":       e.Amount,
	}
}

// LevelUpEvent is emitted for every level a companion gains.
type LevelUpEvent struct {
	BaseEvent
	CompanionID string `json:"companion_id"`
	OldLevel    int    `json:"old_level"`
	NewLevel    int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id": e.CompanionID,
		"old_level":    e.OldLevel,
		"new_level":    e.NewLevel,
	}
}

// StageEvolvedEvent is emitted when the evolution stage advances.
type StageEvolvedEvent struct {
	BaseEvent
	CompanionID string `json:"companion_id"`
	OldStage    string `json:"old_stage"`
	NewStage    string `json:"new_stage"`
}

// Payload implements Event interface.
func (e StageEvolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id": e.CompanionID,
		"old_stage":    e.OldStage,
		"new_stage":    e.NewStage,
	}
}

// SkillUnlockedEvent is emitted when a skill is unlocked.
type SkillUnlockedEvent struct {
	BaseEvent
	CompanionID string `json:"companion_id"`
	SkillID     string `json:"skill_id"`
	SkillName   string `json:"skill_name"`
	Category    string `json:"category"`
}

// Payload implements Event interface.
func (e SkillUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id": e.CompanionID,
		"skill_id":     e.SkillID,
		"skill_name":   e.SkillName,
		"category":     e.Category,
	}
}

// AchievementUnlockedEvent is emitted when an achievement is recorded.
type AchievementUnlockedEvent struct {
	BaseEvent
	CompanionID     string `json:"companion_id"`
	AchievementID   string `json:"achievement_id"`
	AchievementName string `json:"achievement_name"`
	Tier            string `json:"tier"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id":     e.CompanionID,
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
		"tier":             e.Tier,
	}
}

// AbilityUsedEvent is emitted when an ability is used successfully.
type AbilityUsedEvent struct {
	BaseEvent
	CompanionID    string    `json:"companion_id"`
	AbilityID      string    `json:"ability_id"`
	AbilityName    string    `json:"ability_name"`
	CooldownExpiry time.Time `json:"cooldown_expiry"`
}

// Payload implements Event interface.
func (e AbilityUsedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id":    e.CompanionID,
		"ability_id":      e.AbilityID,
		"ability_name":    e.AbilityName,
		"cooldown_expiry": e.CooldownExpiry.Format(time.RFC3339),
	}
}

// EvolutionResetEvent is emitted when a companion's progression is wiped.
type EvolutionResetEvent struct {
	BaseEvent
	CompanionID string `json:"companion_id"`
}

// Payload implements Event interface.
func (e EvolutionResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"companion_id": e.CompanionID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event's payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
