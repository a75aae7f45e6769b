// Package companion provides an in-memory companion profile: personality
// traits, current emotion and a bounded list of memories. It stands in for
// the personality, emotion and memory subsystems that consume progression
// effects.
package companion

import (
	"sort"
	"sync"
	"time"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
)

// DefaultMaxMemories bounds the memory list when no limit is given.
const DefaultMaxMemories = 100

// BaselineTrait is the starting value of every trait not set explicitly.
const BaselineTrait = 0.5

// Emotion is the companion's current emotional state.
type Emotion struct {
	Name      string    `json:"name"`
	Intensity float64   `json:"intensity"`
	Since     time.Time `json:"since"`
}

// Snapshot is a copy of the profile suitable for serialization.
type Snapshot struct {
	Traits   map[string]float64         `json:"traits"`
	Emotion  Emotion                    `json:"emotion"`
	Memories []progression.MemoryRecord `json:"memories"`
}

// Profile implements progression.Companion, progression.EmotionUpdater and
// progression.MemorySink. It is safe for concurrent use.
type Profile struct {
	mu          sync.RWMutex
	traits      map[string]float64
	emotion     Emotion
	memories    []progression.MemoryRecord
	maxMemories int
	now         func() time.Time
}

var (
	_ progression.Companion      = (*Profile)(nil)
	_ progression.EmotionUpdater = (*Profile)(nil)
	_ progression.MemorySink     = (*Profile)(nil)
)

// NewProfile creates a profile. Baseline values are clamped to [0,1];
// maxMemories <= 0 uses DefaultMaxMemories.
func NewProfile(baseline map[string]float64, maxMemories int) *Profile {
	if maxMemories <= 0 {
		maxMemories = DefaultMaxMemories
	}
	p := &Profile{
		traits:      make(map[string]float64, len(baseline)),
		emotion:     Emotion{Name: "neutral"},
		maxMemories: maxMemories,
		now:         time.Now,
	}
	for k, v := range baseline {
		p.traits[k] = clamp(v)
	}
	return p
}

// UpdatePersonality adds deltas to traits. Unknown traits start at
// BaselineTrait. Results stay within [0,1].
func (p *Profile) UpdatePersonality(deltas map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for trait, d := range deltas {
		cur, ok := p.traits[trait]
		if !ok {
			cur = BaselineTrait
		}
		p.traits[trait] = clamp(cur + d)
	}
}

// UpdateEmotion replaces the current emotion.
func (p *Profile) UpdateEmotion(emotion string, intensity float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emotion = Emotion{Name: emotion, Intensity: clamp(intensity), Since: p.now()}
}

// AddMemory appends a memory, dropping the oldest one when full.
func (p *Profile) AddMemory(rec progression.MemoryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now()
	}
	rec.Tags = append([]string(nil), rec.Tags...)
	p.memories = append(p.memories, rec)
	if over := len(p.memories) - p.maxMemories; over > 0 {
		p.memories = append(p.memories[:0:0], p.memories[over:]...)
	}
}

// Trait returns a trait value and whether it was ever set.
func (p *Profile) Trait(name string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.traits[name]
	return v, ok
}

// TraitNames returns trait names in sorted order.
func (p *Profile) TraitNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.traits))
	for k := range p.traits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Emotion returns the current emotion.
func (p *Profile) Emotion() Emotion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.emotion
}

// Memories returns a copy of stored memories, oldest first.
func (p *Profile) Memories() []progression.MemoryRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]progression.MemoryRecord(nil), p.memories...)
}

// Snapshot returns a deep copy of the profile.
func (p *Profile) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	traits := make(map[string]float64, len(p.traits))
	for k, v := range p.traits {
		traits[k] = v
	}
	return Snapshot{
		Traits:   traits,
		Emotion:  p.emotion,
		Memories: append([]progression.MemoryRecord{}, p.memories...),
	}
}

func clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
