package progression

import (
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// Неизвестные идентификаторы - ошибки программиста (рассинхрон каталога и
// вызывающего кода), поэтому они возвращаются явно. Ожидаемые отказы
// (навык уже открыт, способность на перезарядке) - это false, а не ошибка.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrUnknownTrack - неизвестный трек опыта.
	ErrUnknownTrack = shared.NewDomainError("progression", "Calculate", shared.ErrInvalidInput, "unknown experience track")

	// ErrMetricsMismatch - форма метрик не соответствует треку.
	ErrMetricsMismatch = shared.NewDomainError("progression", "Calculate", shared.ErrInvalidInput, "metrics shape does not match track")

	// ErrUnknownSkill - навык отсутствует в каталоге.
	ErrUnknownSkill = shared.NewDomainError("progression", "Skill", shared.ErrNotFound, "unknown skill")

	// ErrUnknownAchievement - достижение отсутствует в каталоге.
	ErrUnknownAchievement = shared.NewDomainError("progression", "Achievement", shared.ErrNotFound, "unknown achievement")

	// ErrUnknownAbility - способность отсутствует в каталоге.
	ErrUnknownAbility = shared.NewDomainError("progression", "Ability", shared.ErrNotFound, "unknown ability")

	// ErrInvalidCatalog - каталог нарушает инварианты.
	ErrInvalidCatalog = shared.NewDomainError("progression", "LoadCatalog", shared.ErrInvalidEntity, "invalid catalog")

	// ErrInvalidState - сохранённое состояние нарушает инварианты.
	ErrInvalidState = shared.NewDomainError("progression", "Restore", shared.ErrInvalidState, "invalid progression state")
)
