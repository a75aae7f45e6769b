package catalog

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
)

func TestDefault_Loads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Skills.AllSkills(), 12)
	assert.Len(t, c.Achievements.AllAchievements(), 15)
	assert.NotEmpty(t, c.Abilities.AllAbilities())

	for _, cat := range []progression.SkillCategory{
		progression.CategoryPersonality,
		progression.CategoryCommunication,
		progression.CategoryMemory,
		progression.CategoryRelationship,
	} {
		assert.Len(t, c.Skills.SkillsByCategory(cat), 3, "category %s", cat)
	}
}

func TestDefault_SkillTreeShape(t *testing.T) {
	c := MustDefault()

	for _, s := range c.Skills.AllSkills() {
		assert.GreaterOrEqual(t, s.Requirements.MinLevel, 1, s.ID)
		assert.LessOrEqual(t, s.Requirements.MinLevel, progression.MaxLevel, s.ID)

		for _, p := range s.Requirements.Prerequisites {
			pre, err := c.Skills.Skill(p)
			require.NoError(t, err, "skill %s prerequisite %s", s.ID, p)
			assert.Less(t, pre.Requirements.MinLevel, s.Requirements.MinLevel,
				"%s must need a higher level than its prerequisite %s", s.ID, p)
			assert.Less(t, depth(c, p), depth(c, s.ID))
		}
	}
}

func depth(c *progression.Catalog, id progression.SkillID) int {
	s, err := c.Skills.Skill(id)
	if err != nil {
		return 0
	}
	d := 0
	for _, p := range s.Requirements.Prerequisites {
		d = max(d, depth(c, p)+1)
	}
	return d
}

func TestDefault_AchievementTiers(t *testing.T) {
	c := MustDefault()

	bronze := c.Achievements.AchievementsByTier(progression.TierBronze)
	master := c.Achievements.AchievementsByTier(progression.TierMaster)
	require.NotEmpty(t, bronze)
	require.NotEmpty(t, master)

	for _, b := range bronze {
		for _, m := range master {
			assert.Less(t, b.Rewards.Experience, m.Rewards.Experience)
		}
	}

	for _, a := range c.Achievements.AllAchievements() {
		if !a.Tier.IsMilestone() {
			assert.Empty(t, a.Rewards.Abilities, "%s achievement %s", a.Tier, a.ID)
		}
	}

	first, err := c.Achievements.Achievement("first_conversation")
	require.NoError(t, err)
	assert.Equal(t, progression.ConditionTrackExperience, first.Condition.Kind)
	assert.Equal(t, progression.TrackConversation, first.Condition.Track)
}

func TestDefault_AbilityDurations(t *testing.T) {
	c := MustDefault()

	ab, err := c.Abilities.Ability("playful_tease")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ab.Cooldown)
	assert.Equal(t, "amused", ab.Effect.Emotion)

	for _, a := range c.Abilities.AllAbilities() {
		assert.Positive(t, a.Cooldown, a.ID)
	}
}

func TestParse_RejectsBrokenCatalogs(t *testing.T) {
	abilities := []byte("abilities: []\n")
	achievements := []byte("achievements: []\n")

	tests := []struct {
		name   string
		skills string
	}{
		{
			name: "unknown prerequisite",
			skills: `
skills:
  - id: a
    name: A
    category: memory
    requirements: { min_level: 2, prerequisites: [ghost] }
`,
		},
		{
			name: "cycle",
			skills: `
skills:
  - id: a
    name: A
    category: memory
    requirements: { min_level: 2, prerequisites: [b] }
  - id: b
    name: B
    category: memory
    requirements: { min_level: 3, prerequisites: [a] }
`,
		},
		{
			name: "level out of range",
			skills: `
skills:
  - id: a
    name: A
    category: memory
    requirements: { min_level: 11 }
`,
		},
		{
			name: "unknown ability",
			skills: `
skills:
  - id: a
    name: A
    category: memory
    requirements: { min_level: 2 }
    effects: { unlock_abilities: [nope] }
`,
		},
		{
			name: "unknown field",
			skills: `
skills:
  - id: a
    name: A
    category: memory
    colour: blue
    requirements: { min_level: 2 }
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.skills), achievements, abilities)
			assert.Error(t, err)
		})
	}
}

func TestParse_RejectsOverlappingTierRewards(t *testing.T) {
	achievements := []byte(`
achievements:
  - id: small
    name: Small
    tier: bronze
    condition: { kind: level, threshold: 2 }
    rewards: { experience: 100 }
  - id: big
    name: Big
    tier: silver
    condition: { kind: level, threshold: 3 }
    rewards: { experience: 100 }
`)
	_, err := Parse([]byte("skills: []\n"), achievements, []byte("abilities: []\n"))
	assert.ErrorIs(t, err, progression.ErrInvalidCatalog)
}

func TestLoad_FromFS(t *testing.T) {
	fsys := fstest.MapFS{
		SkillsFile:       {Data: []byte("skills: []\n")},
		AchievementsFile: {Data: []byte("achievements: []\n")},
		AbilitiesFile:    {Data: []byte("abilities: []\n")},
	}

	c, err := Load(fsys)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Skills.Count())

	delete(fsys, AbilitiesFile)
	_, err = Load(fsys)
	assert.Error(t, err)
}
