package progression

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// SkillRequirements - условия открытия навыка.
type SkillRequirements struct {
	MinLevel      int           `json:"min_level" yaml:"min_level"`
	Prerequisites []SkillID     `json:"prerequisites,omitempty" yaml:"prerequisites"`
	MinExperience map[Track]int `json:"min_experience,omitempty" yaml:"min_experience"`
}

// SkillEffects - эффекты, применяемые при открытии навыка.
type SkillEffects struct {
	PersonalityGrowth     map[string]float64 `json:"personality_growth,omitempty" yaml:"personality_growth"`
	UnlockAbilities       []AbilityID        `json:"unlock_abilities,omitempty" yaml:"unlock_abilities"`
	ExperienceMultipliers map[Track]float64  `json:"experience_multipliers,omitempty" yaml:"experience_multipliers"`
}

// SkillDefinition - узел дерева навыков.
type SkillDefinition struct {
	ID           SkillID           `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description" yaml:"description"`
	Category     SkillCategory     `json:"category" yaml:"category"`
	Requirements SkillRequirements `json:"requirements" yaml:"requirements"`
	Effects      SkillEffects      `json:"effects" yaml:"effects"`
}

// SkillSnapshot - неизменяемая проекция состояния для проверки условий навыка.
type SkillSnapshot struct {
	Level            int
	ExperienceByType map[Track]int
	Unlocked         map[SkillID]bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SKILL MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// SkillManager хранит каталог навыков и отвечает на вопрос "можно ли открыть".
// Не хранит состояние компаньона; безопасен для общего использования.
type SkillManager struct {
	order []SkillID
	defs  map[SkillID]SkillDefinition
}

// NewSkillManager проверяет каталог навыков и создаёт менеджер.
// Порядок навыков сохраняется.
func NewSkillManager(defs []SkillDefinition) (*SkillManager, error) {
	m := &SkillManager{
		order: make([]SkillID, 0, len(defs)),
		defs:  make(map[SkillID]SkillDefinition, len(defs)),
	}

	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: skill with empty id", ErrInvalidCatalog)
		}
		if _, dup := m.defs[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate skill %q", ErrInvalidCatalog, d.ID)
		}
		if !d.Category.IsValid() {
			return nil, fmt.Errorf("%w: skill %q has unknown category %q", ErrInvalidCatalog, d.ID, d.Category)
		}
		if d.Requirements.MinLevel < 1 || d.Requirements.MinLevel > MaxLevel {
			return nil, fmt.Errorf("%w: skill %q min level %d out of [1,%d]", ErrInvalidCatalog, d.ID, d.Requirements.MinLevel, MaxLevel)
		}
		for t, v := range d.Requirements.MinExperience {
			if !t.IsValid() || v < 0 {
				return nil, fmt.Errorf("%w: skill %q has bad experience floor %s=%d", ErrInvalidCatalog, d.ID, t, v)
			}
		}
		for t, v := range d.Effects.ExperienceMultipliers {
			if !t.IsValid() || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: skill %q has bad multiplier %s=%v", ErrInvalidCatalog, d.ID, t, v)
			}
		}
		m.order = append(m.order, d.ID)
		m.defs[d.ID] = d
	}

	for _, id := range m.order {
		for _, p := range m.defs[id].Requirements.Prerequisites {
			if _, ok := m.defs[p]; !ok {
				return nil, fmt.Errorf("%w: skill %q requires unknown skill %q", ErrInvalidCatalog, id, p)
			}
		}
	}

	if cycle := m.findCycle(); cycle != "" {
		return nil, fmt.Errorf("%w: prerequisite cycle through %q", ErrInvalidCatalog, cycle)
	}

	return m, nil
}

// findCycle ищет цикл в графе предпосылок (DFS с тремя цветами).
func (m *SkillManager) findCycle() SkillID {
	const (
		white = iota
		grey
		black
	)
	color := make(map[SkillID]int, len(m.defs))

	var visit func(id SkillID) SkillID
	visit = func(id SkillID) SkillID {
		color[id] = grey
		for _, p := range m.defs[id].Requirements.Prerequisites {
			switch color[p] {
			case grey:
				return p
			case white:
				if c := visit(p); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, id := range m.order {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// CanUnlock сообщает, можно ли открыть навык при данном снимке состояния.
// Очки навыков здесь не учитываются: их проверяет оркестратор.
// Неизвестный навык - false.
func (m *SkillManager) CanUnlock(id SkillID, snap SkillSnapshot) bool {
	def, ok := m.defs[id]
	if !ok {
		return false
	}
	if snap.Unlocked[id] {
		return false
	}
	if snap.Level < def.Requirements.MinLevel {
		return false
	}
	for _, p := range def.Requirements.Prerequisites {
		if !snap.Unlocked[p] {
			return false
		}
	}
	for t, floor := range def.Requirements.MinExperience {
		if snap.ExperienceByType[t] < floor {
			return false
		}
	}
	return true
}

// Skill возвращает определение навыка.
func (m *SkillManager) Skill(id SkillID) (SkillDefinition, error) {
	def, ok := m.defs[id]
	if !ok {
		return SkillDefinition{}, fmt.Errorf("%w: %q", ErrUnknownSkill, id)
	}
	return def, nil
}

// AllSkills возвращает навыки в порядке каталога.
func (m *SkillManager) AllSkills() []SkillDefinition {
	out := make([]SkillDefinition, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.defs[id])
	}
	return out
}

// SkillsByCategory возвращает навыки одной ветки в порядке каталога.
func (m *SkillManager) SkillsByCategory(cat SkillCategory) []SkillDefinition {
	var out []SkillDefinition
	for _, id := range m.order {
		if d := m.defs[id]; d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// Count возвращает число навыков в каталоге.
func (m *SkillManager) Count() int {
	return len(m.order)
}
