package query

import (
	"fmt"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST CATALOG QUERY
// Определения навыков, достижений и способностей в порядке каталога.
// ══════════════════════════════════════════════════════════════════════════════

// ListCatalogQuery - фильтры каталога. Пустой фильтр возвращает всё.
type ListCatalogQuery struct {
	// Category - ветка навыков.
	Category string

	// Tier - уровень редкости достижений.
	Tier string
}

// Validate проверяет значения фильтров.
func (q ListCatalogQuery) Validate() error {
	if q.Category != "" && !progression.SkillCategory(q.Category).IsValid() {
		return shared.NewDomainError("query", "ListCatalog", shared.ErrValidation, fmt.Sprintf("unknown category %q", q.Category))
	}
	if q.Tier != "" && !progression.Tier(q.Tier).IsValid() {
		return shared.NewDomainError("query", "ListCatalog", shared.ErrValidation, fmt.Sprintf("unknown tier %q", q.Tier))
	}
	return nil
}

// ListCatalogHandler отдаёт содержимое каталога.
type ListCatalogHandler struct {
	catalog *progression.Catalog
}

// NewListCatalogHandler создаёт обработчик.
func NewListCatalogHandler(catalog *progression.Catalog) *ListCatalogHandler {
	return &ListCatalogHandler{catalog: catalog}
}

// Skills возвращает навыки, при необходимости одной ветки.
func (h *ListCatalogHandler) Skills(q ListCatalogQuery) ([]progression.SkillDefinition, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Category != "" {
		return h.catalog.Skills.SkillsByCategory(progression.SkillCategory(q.Category)), nil
	}
	return h.catalog.Skills.AllSkills(), nil
}

// Achievements возвращает достижения, при необходимости одного уровня.
func (h *ListCatalogHandler) Achievements(q ListCatalogQuery) ([]progression.AchievementDefinition, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Tier != "" {
		return h.catalog.Achievements.AchievementsByTier(progression.Tier(q.Tier)), nil
	}
	return h.catalog.Achievements.AllAchievements(), nil
}

// Abilities возвращает все способности.
func (h *ListCatalogHandler) Abilities() []progression.AbilityDefinition {
	return h.catalog.Abilities.AllAbilities()
}
