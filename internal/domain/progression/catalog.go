package progression

import "fmt"

// Catalog объединяет проверенные каталоги навыков, достижений и способностей.
// Создаётся один раз при старте и используется всеми оркестраторами только
// на чтение.
type Catalog struct {
	Skills       *SkillManager
	Achievements *AchievementTracker
	Abilities    *AbilityRegistry
}

// NewCatalog проверяет определения по отдельности и перекрёстные ссылки
// на способности.
func NewCatalog(skills []SkillDefinition, achievements []AchievementDefinition, abilities []AbilityDefinition) (*Catalog, error) {
	ab, err := NewAbilityRegistry(abilities)
	if err != nil {
		return nil, err
	}
	sm, err := NewSkillManager(skills)
	if err != nil {
		return nil, err
	}
	at, err := NewAchievementTracker(achievements, sm.Count())
	if err != nil {
		return nil, err
	}

	for _, s := range sm.AllSkills() {
		for _, id := range s.Effects.UnlockAbilities {
			if !ab.Has(id) {
				return nil, fmt.Errorf("%w: skill %q grants unknown ability %q", ErrInvalidCatalog, s.ID, id)
			}
		}
	}
	for _, a := range at.AllAchievements() {
		for _, id := range a.Rewards.Abilities {
			if !ab.Has(id) {
				return nil, fmt.Errorf("%w: achievement %q grants unknown ability %q", ErrInvalidCatalog, a.ID, id)
			}
		}
	}

	return &Catalog{Skills: sm, Achievements: at, Abilities: ab}, nil
}
