package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAchievements() []AchievementDefinition {
	return []AchievementDefinition{
		{ID: "hello", Tier: TierBronze, Condition: Condition{Kind: ConditionTrackExperience, Track: TrackConversation, Threshold: 1}, Rewards: AchievementRewards{Experience: 10}},
		{ID: "lvl3", Tier: TierSilver, Condition: Condition{Kind: ConditionLevel, Threshold: 3}, Rewards: AchievementRewards{Experience: 50}},
		{ID: "grown", Tier: TierSilver, Condition: Condition{Kind: ConditionStage, Stage: StageDeveloping}, Rewards: AchievementRewards{Experience: 40}},
		{ID: "two_skills", Tier: TierSilver, Condition: Condition{Kind: ConditionSkillCount, Threshold: 2}, Rewards: AchievementRewards{Experience: 60}},
		{ID: "balanced", Tier: TierGold, Condition: Condition{Kind: ConditionWellRounded, Threshold: 10}, Rewards: AchievementRewards{Experience: 100, Abilities: []AbilityID{"glow"}}},
		{ID: "perfect", Tier: TierMaster, Condition: Condition{Kind: ConditionPerfectCompanion, Threshold: 10}, Rewards: AchievementRewards{Experience: 500}},
	}
}

func TestAchievementTracker_CheckAchievements(t *testing.T) {
	tr, err := NewAchievementTracker(testAchievements(), 2)
	require.NoError(t, err)

	s := NewProgressionState()
	assert.Empty(t, tr.CheckAchievements(s))

	s.ExperienceByType[TrackConversation] = 5
	assert.Equal(t, []AchievementID{"hello"}, tr.CheckAchievements(s))

	s.Level = 3
	s.Stage = StageDeveloping
	s.UnlockedSkills = []SkillID{"a", "b"}
	for _, track := range AllTracks() {
		s.ExperienceByType[track] = 10
	}
	assert.Equal(t,
		[]AchievementID{"hello", "lvl3", "grown", "two_skills", "balanced"},
		tr.CheckAchievements(s),
		"catalog order, perfect needs max level",
	)

	s.Level = MaxLevel
	assert.Contains(t, tr.CheckAchievements(s), AchievementID("perfect"))
}

func TestAchievementTracker_NeverReturnsUnlocked(t *testing.T) {
	tr, err := NewAchievementTracker(testAchievements(), 2)
	require.NoError(t, err)

	s := NewProgressionState()
	s.ExperienceByType[TrackConversation] = 5
	s.Level = 3
	s.Stage = StageDeveloping

	before := s.Clone()
	first := tr.CheckAchievements(s)
	require.NotEmpty(t, first)
	assert.Equal(t, before, s, "tracker must not mutate state")

	s.UnlockedAchievements = append(s.UnlockedAchievements, first...)
	assert.Empty(t, tr.CheckAchievements(s))
	assert.Empty(t, tr.CheckAchievements(s))
}

func TestNewAchievementTracker_Validation(t *testing.T) {
	tests := []struct {
		name string
		defs []AchievementDefinition
	}{
		{"bronze grants ability", []AchievementDefinition{
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: ConditionLevel, Threshold: 2}, Rewards: AchievementRewards{Abilities: []AbilityID{"x"}}},
		}},
		{"tier rewards overlap", []AchievementDefinition{
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: ConditionLevel, Threshold: 2}, Rewards: AchievementRewards{Experience: 80}},
			{ID: "b", Tier: TierGold, Condition: Condition{Kind: ConditionLevel, Threshold: 3}, Rewards: AchievementRewards{Experience: 50}},
		}},
		{"unknown kind", []AchievementDefinition{
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: "vibes"}},
		}},
		{"unknown track", []AchievementDefinition{
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: ConditionTrackExperience, Track: "gossip", Threshold: 1}},
		}},
		{"duplicate", []AchievementDefinition{
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: ConditionLevel, Threshold: 2}},
			{ID: "a", Tier: TierBronze, Condition: Condition{Kind: ConditionLevel, Threshold: 2}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAchievementTracker(tt.defs, 0)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestAchievementTracker_Lookups(t *testing.T) {
	tr, err := NewAchievementTracker(testAchievements(), 2)
	require.NoError(t, err)

	a, err := tr.Achievement("balanced")
	require.NoError(t, err)
	assert.Equal(t, TierGold, a.Tier)

	_, err = tr.Achievement("missing")
	assert.ErrorIs(t, err, ErrUnknownAchievement)

	assert.Len(t, tr.AchievementsByTier(TierSilver), 3)
	assert.Len(t, tr.AllAchievements(), 6)
}
