package progression

import (
	"fmt"
	"time"
)

// AbilityEffect - эффект применения способности.
type AbilityEffect struct {
	// PersonalityNudge - небольшие сдвиги черт характера.
	PersonalityNudge map[string]float64 `json:"personality_nudge,omitempty" yaml:"personality_nudge"`

	// Emotion - эмоция, которую способность вызывает у компаньона (может быть пустой).
	Emotion          string  `json:"emotion,omitempty" yaml:"emotion"`
	EmotionIntensity float64 `json:"emotion_intensity,omitempty" yaml:"emotion_intensity"`
}

// AbilityDefinition - способность, открываемая навыками и достижениями.
type AbilityDefinition struct {
	ID          AbilityID     `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Cooldown    time.Duration `json:"cooldown" yaml:"cooldown"`
	Effect      AbilityEffect `json:"effect" yaml:"effect"`
}

// AbilityRegistry - каталог способностей.
type AbilityRegistry struct {
	order []AbilityID
	defs  map[AbilityID]AbilityDefinition
}

// NewAbilityRegistry проверяет и индексирует каталог способностей.
func NewAbilityRegistry(defs []AbilityDefinition) (*AbilityRegistry, error) {
	r := &AbilityRegistry{
		order: make([]AbilityID, 0, len(defs)),
		defs:  make(map[AbilityID]AbilityDefinition, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: ability with empty id", ErrInvalidCatalog)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate ability %q", ErrInvalidCatalog, d.ID)
		}
		if d.Cooldown < 0 {
			return nil, fmt.Errorf("%w: ability %q has negative cooldown", ErrInvalidCatalog, d.ID)
		}
		if d.Effect.EmotionIntensity < 0 || d.Effect.EmotionIntensity > 1 {
			return nil, fmt.Errorf("%w: ability %q emotion intensity out of [0,1]", ErrInvalidCatalog, d.ID)
		}
		r.order = append(r.order, d.ID)
		r.defs[d.ID] = d
	}
	return r, nil
}

// Ability возвращает определение способности.
func (r *AbilityRegistry) Ability(id AbilityID) (AbilityDefinition, error) {
	d, ok := r.defs[id]
	if !ok {
		return AbilityDefinition{}, fmt.Errorf("%w: %q", ErrUnknownAbility, id)
	}
	return d, nil
}

// Has проверяет наличие способности в каталоге.
func (r *AbilityRegistry) Has(id AbilityID) bool {
	_, ok := r.defs[id]
	return ok
}

// AllAbilities возвращает способности в порядке каталога.
func (r *AbilityRegistry) AllAbilities() []AbilityDefinition {
	out := make([]AbilityDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}
