package command

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicompanion/companion-hub/internal/application/eventhandler"
	"github.com/aicompanion/companion-hub/internal/application/session"
	"github.com/aicompanion/companion-hub/internal/catalog"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/messaging"
	rediscache "github.com/aicompanion/companion-hub/internal/infrastructure/persistence/redis"
	"github.com/aicompanion/companion-hub/internal/infrastructure/persistence/sqlite"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

type fixture struct {
	store     *sqlite.Store
	cache     *rediscache.StatsCache
	mr        *miniredis.Miniredis
	registry  *session.Registry
	persister *Persister
	clock     *timeutil.ManualClock

	award  *AwardExperienceHandler
	unlock *UnlockSkillHandler
	use    *UseAbilityHandler
	reset  *ResetEvolutionHandler
}

func newFixture(t *testing.T, wrap func(progression.Repository) progression.Repository) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var repo progression.Repository = store
	if wrap != nil {
		repo = wrap(store)
	}

	mr := miniredis.RunT(t)
	c, err := rediscache.NewCache(ctx, rediscache.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	cache := rediscache.NewStatsCache(c, nil)

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })
	journal := eventhandler.NewHistoryJournalHandler(store, nil, messaging.IsRemote, nil, eventhandler.DefaultHistoryJournalConfig())
	require.NoError(t, journal.Register(bus))

	clock := timeutil.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	reg := session.NewRegistry(catalog.MustDefault(), repo, nil, session.Config{
		MaxSessions: 10,
		Clock:       clock,
		Attach: func(sys *progression.EvolutionSystem) func() {
			return messaging.Bridge(sys, bus, nil)
		},
	}, nil)
	t.Cleanup(reg.Close)

	p := NewPersister(reg, repo, cache, PersisterConfig{SaveAttempts: 2, SaveBackoff: time.Millisecond}, nil)
	return &fixture{
		store:     store,
		cache:     cache,
		mr:        mr,
		registry:  reg,
		persister: p,
		clock:     clock,
		award:     NewAwardExperienceHandler(p, nil),
		unlock:    NewUnlockSkillHandler(p, nil),
		use:       NewUseAbilityHandler(p, clock, nil),
		reset:     NewResetEvolutionHandler(p, nil),
	}
}

var bigMessage = &progression.ConversationMetrics{MessageLength: 1000, Complexity: 1, Engagement: 1, ResponseQuality: 1}

// reachLevelTwo awards a full conversation: level 2 with one skill point.
func (f *fixture) reachLevelTwo(t *testing.T, id string) {
	t.Helper()
	res, err := f.award.Handle(context.Background(), AwardExperienceCommand{
		CompanionID: id, Track: "conversation", Metrics: bigMessage,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Level)
}

func TestAwardExperience_PersistsAndJournals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.award.Handle(ctx, AwardExperienceCommand{
		CompanionID: "luna",
		Track:       "conversation",
		Metrics:     &progression.ConversationMetrics{MessageLength: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Amount)
	assert.Equal(t, 1, res.Level)
	assert.Equal(t, []string{progression.KindExperienceGained, progression.KindAchievementUnlocked}, res.Events)
	assert.Equal(t, []progression.AchievementID{"first_conversation"}, res.NewAchievements)

	stored, err := f.store.Load(ctx, "luna")
	require.NoError(t, err)
	assert.Equal(t, 26, stored.Experience)
	assert.True(t, stored.HasAchievement("first_conversation"))

	history, err := f.store.History(ctx, "luna", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, progression.KindAchievementUnlocked, history[0].Kind)
	assert.Equal(t, progression.KindExperienceGained, history[1].Kind)
	assert.JSONEq(t, `{"companion_id":"luna","track":"conversation","amount":1}`, string(history[1].Payload))
}

func TestAwardExperience_LevelAndStage(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.award.Handle(context.Background(), AwardExperienceCommand{
		CompanionID: "luna", Track: "conversation", Metrics: bigMessage,
	})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Amount)
	assert.Equal(t, 1, res.LevelsGained)
	assert.Equal(t, progression.StageDeveloping, res.StageEvolved)
	assert.Equal(t, []string{
		progression.KindLevelUp,
		progression.KindStageEvolved,
		progression.KindExperienceGained,
		progression.KindAchievementUnlocked,
		progression.KindAchievementUnlocked,
	}, res.Events)
}

func TestAwardExperience_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []AwardExperienceCommand{
		{CompanionID: "", Track: "conversation"},
		{CompanionID: "luna", Track: "dancing"},
		{CompanionID: "luna", Track: "conversation", Multiplier: -1},
		{CompanionID: "luna", Track: "learning", Metrics: bigMessage},
	}
	for _, cmd := range cases {
		_, err := f.award.Handle(ctx, cmd)
		require.Error(t, err, "%+v", cmd)
		assert.True(t, shared.IsValidation(err), "%+v: %v", cmd, err)
	}

	_, err := f.store.Load(ctx, "luna")
	assert.ErrorIs(t, err, shared.ErrProgressionNotFound, "rejected awards must not be persisted")
}

func TestAwardExperience_InvalidatesCachedStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.cache.Set(ctx, "luna", progression.EvolutionStats{Level: 7}, time.Minute))
	_, err := f.award.Handle(ctx, AwardExperienceCommand{CompanionID: "luna", Track: "emotional"})
	require.NoError(t, err)

	_, err = f.cache.Get(ctx, "luna")
	assert.ErrorIs(t, err, shared.ErrCacheMiss)
}

func TestUnlockSkill(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cmd := UnlockSkillCommand{CompanionID: "luna", SkillID: "empathetic_core"}

	res, err := f.unlock.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Unlocked)
	assert.Equal(t, RejectNoSkillPoints, res.Reason)

	f.reachLevelTwo(t, "luna")

	res, err = f.unlock.Handle(ctx, UnlockSkillCommand{CompanionID: "luna", SkillID: "emotional_depth"})
	require.NoError(t, err)
	assert.False(t, res.Unlocked)
	assert.Equal(t, RejectRequirements, res.Reason)

	res, err = f.unlock.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
	assert.Equal(t, 0, res.AvailableSkillPoints)
	assert.Contains(t, res.Events, progression.KindSkillUnlocked)

	stored, err := f.store.Load(ctx, "luna")
	require.NoError(t, err)
	assert.True(t, stored.HasSkill("empathetic_core"))
	assert.True(t, stored.HasAbility("comforting_presence"))

	res, err = f.unlock.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Unlocked)
	assert.Equal(t, RejectAlreadyUnlocked, res.Reason)

	_, err = f.unlock.Handle(ctx, UnlockSkillCommand{CompanionID: "luna", SkillID: "telepathy"})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestUseAbility_Cooldown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cmd := UseAbilityCommand{CompanionID: "luna", AbilityID: "comforting_presence"}

	res, err := f.use.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Used)
	assert.Equal(t, RejectNotUnlocked, res.Reason)

	f.reachLevelTwo(t, "luna")
	_, err = f.unlock.Handle(ctx, UnlockSkillCommand{CompanionID: "luna", SkillID: "empathetic_core"})
	require.NoError(t, err)

	res, err = f.use.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.Used)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), res.CooldownUntil)
	assert.Equal(t, 10*time.Minute, res.Remaining)

	f.clock.Advance(4 * time.Minute)
	res, err = f.use.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Used)
	assert.Equal(t, RejectOnCooldown, res.Reason)
	assert.Equal(t, 6*time.Minute, res.Remaining)

	f.clock.Advance(6 * time.Minute)
	res, err = f.use.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.Used)

	sess, err := f.registry.Get(ctx, "luna")
	require.NoError(t, err)
	assert.Equal(t, "calm", sess.Profile().Emotion().Name)

	_, err = f.use.Handle(ctx, UseAbilityCommand{CompanionID: "luna", AbilityID: "mind_reading"})
	assert.True(t, shared.IsNotFound(err))
}

func TestResetEvolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.reachLevelTwo(t, "luna")

	res, err := f.reset.Handle(ctx, ResetEvolutionCommand{CompanionID: "luna"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PreviousLevel)
	assert.Equal(t, progression.StageDeveloping, res.PreviousStage)
	assert.False(t, res.HistoryPurged)

	stored, err := f.store.Load(ctx, "luna")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Level)
	assert.Equal(t, progression.StageNascent, stored.Stage)

	history, err := f.store.History(ctx, "luna", 100)
	require.NoError(t, err)
	assert.Greater(t, len(history), 1)
	assert.Equal(t, progression.KindEvolutionReset, history[0].Kind)
}

func TestResetEvolution_PurgeHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.reachLevelTwo(t, "luna")

	res, err := f.reset.Handle(ctx, ResetEvolutionCommand{CompanionID: "luna", PurgeHistory: true})
	require.NoError(t, err)
	assert.True(t, res.HistoryPurged)

	history, err := f.store.History(ctx, "luna", 100)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, progression.KindEvolutionReset, history[0].Kind)
}

type failingSaves struct {
	progression.Repository
	saves int
}

func (r *failingSaves) Save(context.Context, string, progression.ProgressionState) error {
	r.saves++
	return shared.ErrStorageUnavailable
}

func TestPersister_FailedSaveEvictsSession(t *testing.T) {
	var repo *failingSaves
	f := newFixture(t, func(inner progression.Repository) progression.Repository {
		repo = &failingSaves{Repository: inner}
		return repo
	})

	_, err := f.award.Handle(context.Background(), AwardExperienceCommand{CompanionID: "luna", Track: "learning"})
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, 2, repo.saves, "retryable errors are retried up to SaveAttempts")

	assert.False(t, f.registry.Loaded("luna"), "session is discarded before the command returns")

	err = f.registry.Exec(context.Background(), "luna", func(sys *progression.EvolutionSystem) error {
		assert.Zero(t, sys.Evolution().TotalExperience(), "unsaved award must not survive")
		return nil
	})
	require.NoError(t, err)
}
