package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION PORTS
// Внешние зависимости оркестратора. Реализуются подсистемами личности,
// эмоций и памяти компаньона.
// ══════════════════════════════════════════════════════════════════════════════

// Companion - носитель личности, к которому применяются эффекты навыков,
// наград и способностей.
type Companion interface {
	// UpdatePersonality применяет изменения черт характера.
	UpdatePersonality(deltas map[string]float64)
}

// EmotionUpdater - необязательная возможность компаньона выражать эмоции.
// Проверяется через type assertion.
type EmotionUpdater interface {
	UpdateEmotion(emotion string, intensity float64)
}

// MemoryKind - вид записи в памяти компаньона.
type MemoryKind string

const (
	MemoryLevelUp     MemoryKind = "level_up"
	MemoryStage       MemoryKind = "stage_evolved"
	MemoryAchievement MemoryKind = "achievement"
)

// MemoryRecord - запись о значимом моменте прогрессии.
type MemoryRecord struct {
	Kind       MemoryKind `json:"kind"`
	Content    string     `json:"content"`
	Importance float64    `json:"importance"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MemorySink принимает записи о вехах прогрессии.
type MemorySink interface {
	AddMemory(rec MemoryRecord)
}
