package progression_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicompanion/companion-hub/internal/catalog"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

type fakeCompanion struct {
	mu          sync.Mutex
	personality map[string]float64
	emotions    []string
	memories    []progression.MemoryRecord
}

func newFakeCompanion() *fakeCompanion {
	return &fakeCompanion{personality: map[string]float64{}}
}

func (f *fakeCompanion) UpdatePersonality(deltas map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range deltas {
		f.personality[k] += v
	}
}

func (f *fakeCompanion) UpdateEmotion(emotion string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emotions = append(f.emotions, emotion)
}

func (f *fakeCompanion) AddMemory(rec progression.MemoryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories = append(f.memories, rec)
}

func (f *fakeCompanion) memoryKinds() []progression.MemoryKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]progression.MemoryKind, 0, len(f.memories))
	for _, m := range f.memories {
		out = append(out, m.Kind)
	}
	return out
}

var (
	maxConversation = progression.ConversationMetrics{MessageLength: 1000, Complexity: 1, Engagement: 1, ResponseQuality: 1}
	tinyMessage     = progression.ConversationMetrics{MessageLength: 10}
	epoch           = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newSystem(t *testing.T, opts ...progression.Option) (*progression.EvolutionSystem, *fakeCompanion, *timeutil.ManualClock) {
	t.Helper()
	comp := newFakeCompanion()
	clock := timeutil.NewManualClock(epoch)
	opts = append([]progression.Option{progression.WithClock(clock)}, opts...)
	sys, err := progression.NewEvolutionSystem("luna", catalog.MustDefault(), comp, opts...)
	require.NoError(t, err)
	return sys, comp, clock
}

func assertAccounting(t *testing.T, s progression.ProgressionState) {
	t.Helper()
	assert.Equal(t, progression.CumulativeThreshold(s.Level)+s.Experience, s.TotalExperience(),
		"level %d experience %d by type %v", s.Level, s.Experience, s.ExperienceByType)
}

func recordKinds(sys *progression.EvolutionSystem) *[]string {
	var mu sync.Mutex
	kinds := &[]string{}
	sys.Subscribe(func(ev progression.Event) {
		mu.Lock()
		*kinds = append(*kinds, ev.Kind())
		mu.Unlock()
	})
	return kinds
}

func TestAddExperience_FirstConversation(t *testing.T) {
	sys, _, _ := newSystem(t)
	kinds := recordKinds(sys)

	amount, err := sys.AddExperience(progression.TrackConversation, tinyMessage)
	require.NoError(t, err)
	assert.Equal(t, 1, amount)

	s := sys.Evolution()
	assert.Equal(t, 1, s.Level)
	assert.Positive(t, s.Experience)
	assert.Equal(t, []progression.AchievementID{"first_conversation"}, s.UnlockedAchievements)
	assert.Equal(t, 26, s.ExperienceByType[progression.TrackConversation])
	assertAccounting(t, s)

	assert.Equal(t, []string{progression.KindExperienceGained, progression.KindAchievementUnlocked}, *kinds)
}

func TestAddExperience_MasterConversationalist(t *testing.T) {
	sys, _, _ := newSystem(t)

	prevStage := progression.StageNascent
	for i := 0; i < 50; i++ {
		_, err := sys.AddExperience(progression.TrackConversation, maxConversation)
		require.NoError(t, err)

		s := sys.Evolution()
		assertAccounting(t, s)
		assert.True(t, s.Stage.AtLeast(prevStage), "stage regressed from %s to %s", prevStage, s.Stage)
		prevStage = s.Stage

		if s.ExperienceByType[progression.TrackConversation] >= 1000 {
			break
		}
	}

	s := sys.Evolution()
	require.GreaterOrEqual(t, s.ExperienceByType[progression.TrackConversation], 1000)
	assert.Contains(t, s.UnlockedAchievements, progression.AchievementID("master_conversationalist"))
	assert.Contains(t, s.UnlockedAchievements, progression.AchievementID("growing_up"))
	assert.True(t, s.HasAbility("silver_tongue"))

	seen := map[progression.AchievementID]bool{}
	for _, id := range s.UnlockedAchievements {
		assert.False(t, seen[id], "duplicate achievement %s", id)
		seen[id] = true
	}
}

func TestAddExperience_LevelUpEvents(t *testing.T) {
	sys, comp, _ := newSystem(t)
	kinds := recordKinds(sys)

	amount, err := sys.AddExperience(progression.TrackConversation, maxConversation)
	require.NoError(t, err)
	assert.Equal(t, 100, amount)

	assert.Equal(t, []string{
		progression.KindLevelUp,
		progression.KindStageEvolved,
		progression.KindExperienceGained,
		progression.KindAchievementUnlocked,
		progression.KindAchievementUnlocked,
	}, *kinds)

	s := sys.Evolution()
	assert.Equal(t, 2, s.Level)
	assert.Equal(t, progression.StageDeveloping, s.Stage)
	assert.Equal(t, 85, s.Experience)
	assert.Equal(t, 1, s.AvailableSkillPoints)
	assert.Equal(t, []progression.AchievementID{"first_conversation", "developing_mind"}, s.UnlockedAchievements)
	assert.InDelta(t, 0.02, s.PersonalityGrowth["curiosity"], 1e-9)

	assert.Equal(t, []progression.MemoryKind{progression.MemoryLevelUp, progression.MemoryStage}, comp.memoryKinds())

	stats := sys.Stats()
	assert.Equal(t, 115, stats.ExperienceToNext)
	assert.InDelta(t, 42.5, stats.ProgressPercent, 1e-9)
	assert.Equal(t, 185, stats.TotalExperience)
	assert.Equal(t, 2, stats.AchievementCount)
}

func TestAddExperience_StageAdvancedEvent(t *testing.T) {
	sys, _, _ := newSystem(t)

	var stages []progression.StageAdvanced
	sys.Subscribe(func(ev progression.Event) {
		if e, ok := ev.(progression.StageAdvanced); ok {
			stages = append(stages, e)
		}
	})

	_, err := sys.AddExperience(progression.TrackConversation, maxConversation)
	require.NoError(t, err)

	require.Len(t, stages, 1)
	assert.Equal(t, progression.StageNascent, stages[0].OldStage)
	assert.Equal(t, progression.StageDeveloping, stages[0].NewStage)
	assert.Equal(t, progression.KindStageEvolved, stages[0].Kind())
	assert.Equal(t, epoch, stages[0].At())
}

func TestAddExperience_ConcurrentWithReadingSubscriber(t *testing.T) {
	sys, _, _ := newSystem(t)

	var (
		mu        sync.Mutex
		delivered int
		reads     int
	)
	sys.Subscribe(func(ev progression.Event) {
		level := sys.Evolution().Level
		_ = sys.Stats()
		mu.Lock()
		defer mu.Unlock()
		reads++
		if level < 1 {
			t.Errorf("subscriber read level %d", level)
		}
		if e, ok := ev.(progression.ExperienceGained); ok {
			delivered += e.Amount
		}
	})

	metrics := map[progression.Track]progression.Metrics{
		progression.TrackConversation: progression.ConversationMetrics{MessageLength: 200, Engagement: 0.5},
		progression.TrackEmotional:    progression.EmotionalMetrics{Empathy: 0.5, EmotionsExpressed: 2},
		progression.TrackLearning:     progression.LearningMetrics{NewConcepts: 2},
		progression.TrackRelationship: progression.RelationshipMetrics{TrustDelta: 0.5, SharedExperiences: 1},
	}
	tracks := progression.AllTracks()

	const workers, calls = 8, 20
	var awarded atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < calls; i++ {
					track := tracks[(w+i)%len(tracks)]
					amount, err := sys.AddExperience(track, metrics[track])
					if err != nil {
						t.Errorf("add experience: %v", err)
						return
					}
					awarded.Add(int64(amount))
				}
			}(w)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent AddExperience with a state-reading subscriber did not finish")
	}

	s := sys.Evolution()
	assertAccounting(t, s)

	rewards := 0
	for _, id := range s.UnlockedAchievements {
		def, err := sys.Catalog().Achievements.Achievement(id)
		require.NoError(t, err)
		rewards += def.Rewards.Experience
	}
	assert.Equal(t, int(awarded.Load())+rewards, s.TotalExperience())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int(awarded.Load()), delivered)
	assert.Positive(t, reads)
}

func TestAddExperience_OrderIndependent(t *testing.T) {
	a := progression.LearningMetrics{NewConcepts: 2}
	b := progression.LearningMetrics{Retention: 1}

	first, _, _ := newSystem(t)
	_, err := first.AddExperience(progression.TrackLearning, a)
	require.NoError(t, err)
	_, err = first.AddExperience(progression.TrackLearning, b)
	require.NoError(t, err)

	second, _, _ := newSystem(t)
	_, err = second.AddExperience(progression.TrackLearning, b)
	require.NoError(t, err)
	_, err = second.AddExperience(progression.TrackLearning, a)
	require.NoError(t, err)

	got1 := first.Evolution().ExperienceByType[progression.TrackLearning]
	got2 := second.Evolution().ExperienceByType[progression.TrackLearning]
	assert.Equal(t, got1, got2)
	assert.Equal(t, 4+15+25, got1)
}

func TestAddExperience_Errors(t *testing.T) {
	sys, _, _ := newSystem(t)

	_, err := sys.AddExperience("gossip", nil)
	assert.ErrorIs(t, err, progression.ErrUnknownTrack)

	_, err = sys.AddExperience(progression.TrackEmotional, tinyMessage)
	assert.ErrorIs(t, err, progression.ErrMetricsMismatch)

	assert.Equal(t, progression.NewProgressionState(), sys.Evolution())
}

func TestAddExperience_CallerMultiplier(t *testing.T) {
	sys, _, _ := newSystem(t)
	m := progression.LearningMetrics{Retention: 1}

	amount, err := sys.AddExperience(progression.TrackLearning, m, progression.WithMultiplier(2))
	require.NoError(t, err)
	assert.Equal(t, 30, amount)
}

func cascadeState() progression.ProgressionState {
	s := progression.NewProgressionState()
	s.Level = 2
	s.Stage = progression.StageDeveloping
	s.Experience = 180
	s.ExperienceByType[progression.TrackConversation] = 280
	s.AvailableSkillPoints = 1
	s.UnlockedAchievements = []progression.AchievementID{"first_conversation", "developing_mind"}
	return s
}

func TestAddExperience_Cascade(t *testing.T) {
	sys, _, _ := newSystem(t, progression.WithState(cascadeState()))

	_, err := sys.AddExperience(progression.TrackEmotional, nil)
	require.NoError(t, err)

	s := sys.Evolution()
	assert.Equal(t, 3, s.Level)
	assert.Equal(t, 81, s.Experience)
	assert.Equal(t, 3, s.AvailableSkillPoints)
	assert.Equal(t, []progression.AchievementID{
		"first_conversation", "developing_mind", "first_emotion", "growing_up",
	}, s.UnlockedAchievements)
	assertAccounting(t, s)
}

func TestAddExperience_CascadeDisabled(t *testing.T) {
	sys, _, _ := newSystem(t, progression.WithState(cascadeState()), progression.WithCascade(false))

	_, err := sys.AddExperience(progression.TrackEmotional, nil)
	require.NoError(t, err)

	s := sys.Evolution()
	assert.Equal(t, 3, s.Level)
	assert.NotContains(t, s.UnlockedAchievements, progression.AchievementID("growing_up"))
	assertAccounting(t, s)

	_, err = sys.AddExperience(progression.TrackEmotional, nil)
	require.NoError(t, err)
	assert.Contains(t, sys.Evolution().UnlockedAchievements, progression.AchievementID("growing_up"))
}

func levelTwo(t *testing.T, opts ...progression.Option) (*progression.EvolutionSystem, *fakeCompanion, *timeutil.ManualClock) {
	t.Helper()
	sys, comp, clock := newSystem(t, opts...)
	_, err := sys.AddExperience(progression.TrackConversation, maxConversation)
	require.NoError(t, err)
	require.Equal(t, 2, sys.Evolution().Level)
	return sys, comp, clock
}

func TestUnlockSkill_UnmetPrerequisites(t *testing.T) {
	sys, _, _ := levelTwo(t)
	before := sys.Evolution()

	assert.False(t, sys.UnlockSkill("witty_banter"))
	assert.False(t, sys.UnlockSkill("does_not_exist"))

	after := sys.Evolution()
	assert.Equal(t, before.UnlockedSkills, after.UnlockedSkills)
	assert.Equal(t, before.AvailableSkillPoints, after.AvailableSkillPoints)
}

func TestUnlockSkill_NoPoints(t *testing.T) {
	sys, _, _ := newSystem(t)
	assert.False(t, sys.UnlockSkill("active_listening"))
}

func TestUnlockSkill_AppliesEffects(t *testing.T) {
	sys, comp, _ := levelTwo(t)

	var got []progression.SkillDefinition
	sys.Subscribe(func(ev progression.Event) {
		if e, ok := ev.(progression.SkillUnlocked); ok {
			got = append(got, e.Skill)
		}
	})

	require.True(t, sys.UnlockSkill("active_listening"))
	assert.False(t, sys.UnlockSkill("active_listening"), "already unlocked")

	s := sys.Evolution()
	assert.Equal(t, []progression.SkillID{"active_listening"}, s.UnlockedSkills)
	assert.Equal(t, 0, s.AvailableSkillPoints)
	assert.InDelta(t, 1.05, s.ExperienceMultipliers[progression.TrackConversation], 1e-9)
	assert.InDelta(t, 0.05, comp.personality["attentiveness"], 1e-9)
	require.Len(t, got, 1)
	assert.Equal(t, progression.SkillID("active_listening"), got[0].ID)

	// 45 base * 1.1 level multiplier * 1.05 skill multiplier
	amount, err := sys.AddExperience(progression.TrackConversation, progression.ConversationMetrics{
		MessageLength: 500, Complexity: 0.5, Engagement: 0.5, ResponseQuality: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 52, amount)
}

func TestUnlockSkill_ConcurrentExactlyOnce(t *testing.T) {
	sys, _, _ := levelTwo(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sys.UnlockSkill("trust_building") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	s := sys.Evolution()
	assert.Equal(t, []progression.SkillID{"trust_building"}, s.UnlockedSkills)
	assert.Equal(t, 0, s.AvailableSkillPoints)
}

func TestUseAbility_Cooldown(t *testing.T) {
	sys, comp, clock := levelTwo(t)

	assert.False(t, sys.UseAbility("comforting_presence"), "not unlocked yet")
	require.True(t, sys.UnlockSkill("empathetic_core"))

	var used []progression.AbilityUsed
	sys.Subscribe(func(ev progression.Event) {
		if e, ok := ev.(progression.AbilityUsed); ok {
			used = append(used, e)
		}
	})

	require.True(t, sys.UseAbility("comforting_presence"))
	assert.False(t, sys.UseAbility("comforting_presence"), "on cooldown")

	stats := sys.Stats()
	assert.Empty(t, stats.AvailableAbilities)
	require.Len(t, stats.Abilities, 1)
	assert.Equal(t, "10m", stats.Abilities[0].Display)

	clock.Advance(9 * time.Minute)
	assert.False(t, sys.UseAbility("comforting_presence"))

	clock.Advance(time.Minute)
	assert.True(t, sys.UseAbility("comforting_presence"))

	assert.Equal(t, []string{"calm", "calm"}, comp.emotions)
	require.Len(t, used, 2)
	assert.Equal(t, epoch.Add(10*time.Minute), used[0].CooldownExpiry)
}

func TestReset(t *testing.T) {
	sys, _, _ := levelTwo(t)
	require.True(t, sys.UnlockSkill("detail_recall"))
	kinds := recordKinds(sys)

	sys.Reset()

	assert.Equal(t, progression.NewProgressionState(), sys.Evolution())
	assert.Equal(t, progression.StageNascent, sys.Stats().Stage)
	assert.Equal(t, []string{progression.KindEvolutionReset}, *kinds)
}

func TestSubscribe_HandlerCanReadState(t *testing.T) {
	sys, _, _ := newSystem(t)

	var levels []int
	unsubscribe := sys.Subscribe(func(ev progression.Event) {
		if _, ok := ev.(progression.LevelUp); ok {
			levels = append(levels, sys.Evolution().Level)
		}
	})

	_, err := sys.AddExperience(progression.TrackConversation, maxConversation)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, levels)

	unsubscribe()
	unsubscribe()
	for i := 0; i < 3; i++ {
		_, err = sys.AddExperience(progression.TrackConversation, maxConversation)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{2}, levels)
}

func TestSubscribe_PanickingHandlerIsIsolated(t *testing.T) {
	sys, _, _ := newSystem(t)
	sys.Subscribe(func(progression.Event) { panic("boom") })
	kinds := recordKinds(sys)

	_, err := sys.AddExperience(progression.TrackConversation, tinyMessage)
	require.NoError(t, err)
	assert.Len(t, *kinds, 2)
}

func TestRestore(t *testing.T) {
	sys, _, _ := newSystem(t)

	bad := progression.NewProgressionState()
	bad.Level = 0
	assert.ErrorIs(t, sys.Restore(bad), progression.ErrInvalidState)

	unbalanced := progression.NewProgressionState()
	unbalanced.Experience = 50
	assert.ErrorIs(t, sys.Restore(unbalanced), progression.ErrInvalidState)

	unknown := progression.NewProgressionState()
	unknown.UnlockedSkills = []progression.SkillID{"ghost"}
	assert.ErrorIs(t, sys.Restore(unknown), progression.ErrInvalidState)

	good := cascadeState()
	require.NoError(t, sys.Restore(good))
	assert.Equal(t, 2, sys.Evolution().Level)

	_, err := progression.NewEvolutionSystem("luna", catalog.MustDefault(), nil, progression.WithState(bad))
	assert.Error(t, err)

	_, err = progression.NewEvolutionSystem("luna", nil, nil)
	assert.ErrorIs(t, err, progression.ErrInvalidCatalog)
}
