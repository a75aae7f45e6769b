package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSkills() []SkillDefinition {
	return []SkillDefinition{
		{ID: "listen", Name: "Listen", Category: CategoryCommunication, Requirements: SkillRequirements{MinLevel: 2}},
		{
			ID: "banter", Name: "Banter", Category: CategoryCommunication,
			Requirements: SkillRequirements{
				MinLevel:      4,
				Prerequisites: []SkillID{"listen"},
				MinExperience: map[Track]int{TrackConversation: 300},
			},
		},
		{ID: "care", Name: "Care", Category: CategoryPersonality, Requirements: SkillRequirements{MinLevel: 2}},
	}
}

func TestSkillManager_CanUnlock(t *testing.T) {
	m, err := NewSkillManager(testSkills())
	require.NoError(t, err)

	snap := SkillSnapshot{
		Level:            4,
		ExperienceByType: map[Track]int{TrackConversation: 300},
		Unlocked:         map[SkillID]bool{"listen": true},
	}
	assert.True(t, m.CanUnlock("banter", snap))

	tests := []struct {
		name   string
		mutate func(s *SkillSnapshot)
	}{
		{"missing prerequisite", func(s *SkillSnapshot) { s.Unlocked = map[SkillID]bool{} }},
		{"level too low", func(s *SkillSnapshot) { s.Level = 3 }},
		{"experience floor unmet", func(s *SkillSnapshot) { s.ExperienceByType = map[Track]int{TrackConversation: 299} }},
		{"already unlocked", func(s *SkillSnapshot) { s.Unlocked = map[SkillID]bool{"listen": true, "banter": true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snap
			tt.mutate(&s)
			assert.False(t, m.CanUnlock("banter", s))
		})
	}

	assert.False(t, m.CanUnlock("unknown", snap))
}

func TestSkillManager_Lookups(t *testing.T) {
	m, err := NewSkillManager(testSkills())
	require.NoError(t, err)

	s, err := m.Skill("care")
	require.NoError(t, err)
	assert.Equal(t, CategoryPersonality, s.Category)

	_, err = m.Skill("nope")
	assert.ErrorIs(t, err, ErrUnknownSkill)
	assert.True(t, IsUnknownID(err))

	all := m.AllSkills()
	require.Len(t, all, 3)
	assert.Equal(t, SkillID("listen"), all[0].ID)

	comm := m.SkillsByCategory(CategoryCommunication)
	assert.Len(t, comm, 2)
	assert.Empty(t, m.SkillsByCategory(CategoryMemory))
}

func TestNewSkillManager_Validation(t *testing.T) {
	tests := []struct {
		name string
		defs []SkillDefinition
	}{
		{"duplicate", []SkillDefinition{
			{ID: "a", Category: CategoryMemory, Requirements: SkillRequirements{MinLevel: 1}},
			{ID: "a", Category: CategoryMemory, Requirements: SkillRequirements{MinLevel: 1}},
		}},
		{"bad category", []SkillDefinition{
			{ID: "a", Category: "magic", Requirements: SkillRequirements{MinLevel: 1}},
		}},
		{"level zero", []SkillDefinition{
			{ID: "a", Category: CategoryMemory},
		}},
		{"self cycle", []SkillDefinition{
			{ID: "a", Category: CategoryMemory, Requirements: SkillRequirements{MinLevel: 1, Prerequisites: []SkillID{"a"}}},
		}},
		{"bad multiplier", []SkillDefinition{
			{ID: "a", Category: CategoryMemory, Requirements: SkillRequirements{MinLevel: 1},
				Effects: SkillEffects{ExperienceMultipliers: map[Track]float64{TrackLearning: 0}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSkillManager(tt.defs)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}
