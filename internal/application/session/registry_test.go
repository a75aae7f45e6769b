package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/catalog"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/persistence/sqlite"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

type countingRepo struct {
	progression.Repository
	loads atomic.Int32
	delay time.Duration
	err   error
}

func (r *countingRepo) Load(ctx context.Context, id string) (progression.ProgressionState, error) {
	r.loads.Add(1)
	time.Sleep(r.delay)
	if r.err != nil {
		return progression.ProgressionState{}, r.err
	}
	return r.Repository.Load(ctx, id)
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegistry_FreshCompanionStartsAtLevelOne(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)

	s, err := reg.Get(context.Background(), "luna")
	require.NoError(t, err)

	st := s.System().Evolution()
	assert.Equal(t, 1, st.Level)
	assert.Equal(t, progression.StageNascent, st.Stage)
	assert.True(t, reg.Loaded("luna"))
}

func TestRegistry_RestoresStoredState(t *testing.T) {
	store := newStore(t)
	st := progression.NewProgressionState()
	st.Level = 4
	st.Stage = progression.StageForLevel(4)
	st.AvailableSkillPoints = 3
	st.ExperienceByType[progression.TrackLearning] = progression.CumulativeThreshold(4)
	require.NoError(t, store.Save(context.Background(), "luna", st))

	reg := NewRegistry(catalog.MustDefault(), store, nil, DefaultConfig(), nil)
	s, err := reg.Get(context.Background(), "luna")
	require.NoError(t, err)
	assert.Equal(t, 4, s.System().Evolution().Level)
	assert.Equal(t, progression.StageMaturing, s.System().Evolution().Stage)
}

func TestRegistry_ConcurrentGetLoadsOnce(t *testing.T) {
	repo := &countingRepo{Repository: newStore(t), delay: 20 * time.Millisecond}
	reg := NewRegistry(catalog.MustDefault(), repo, nil, DefaultConfig(), nil)

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Get(context.Background(), "luna")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), repo.loads.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}

func TestRegistry_StorageErrorIsReturned(t *testing.T) {
	repo := &countingRepo{Repository: newStore(t), err: shared.ErrStorageUnavailable}
	reg := NewRegistry(catalog.MustDefault(), repo, nil, DefaultConfig(), nil)

	_, err := reg.Get(context.Background(), "luna")
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.False(t, reg.Loaded("luna"))
}

func TestRegistry_RejectsEmptyID(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	_, err := reg.Get(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidCompanionID)
	assert.True(t, shared.IsValidation(err))
}

func TestSession_ExecAfterEvict(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	s, err := reg.Get(context.Background(), "luna")
	require.NoError(t, err)

	require.True(t, reg.Evict("luna"))
	called := false
	err = s.Exec(func(*progression.EvolutionSystem) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, called)
}

func TestRegistry_DiscardReloadsQueuedCommands(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	ctx := context.Background()

	first, err := reg.Get(ctx, "luna")
	require.NoError(t, err)
	discarded := first.System()

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- first.Exec(func(sys *progression.EvolutionSystem) error {
			_, err := sys.AddExperience(progression.TrackLearning, progression.LearningMetrics{NewConcepts: 5})
			assert.NoError(t, err)
			close(holding)
			<-release
			reg.Discard(sys)
			return nil
		})
	}()
	<-holding

	var (
		seen *progression.EvolutionSystem
		xp   int
	)
	queued := make(chan error, 1)
	go func() {
		queued <- reg.Exec(ctx, "luna", func(sys *progression.EvolutionSystem) error {
			seen = sys
			xp = sys.Evolution().TotalExperience()
			return nil
		})
	}()
	close(release)

	require.NoError(t, <-done)
	require.NoError(t, <-queued)
	assert.NotSame(t, discarded, seen)
	assert.Zero(t, xp, "unsaved progress must not survive a discard")
	assert.True(t, reg.Loaded("luna"))
}

func TestRegistry_DiscardIgnoresReplacedSession(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	ctx := context.Background()

	old, err := reg.Get(ctx, "luna")
	require.NoError(t, err)
	require.True(t, reg.Evict("luna"))
	current, err := reg.Get(ctx, "luna")
	require.NoError(t, err)

	reg.Discard(old.System())
	assert.True(t, reg.Loaded("luna"))
	require.NoError(t, current.Exec(func(*progression.EvolutionSystem) error { return nil }))
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var detached []string
	var mu sync.Mutex
	cfg := Config{
		MaxSessions: 2,
		Clock:       clock,
		Attach: func(sys *progression.EvolutionSystem) func() {
			return func() {
				mu.Lock()
				defer mu.Unlock()
				detached = append(detached, sys.CompanionID())
			}
		},
	}
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, cfg, nil)
	ctx := context.Background()

	_, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.Get(ctx, "b")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.Get(ctx, "a")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.True(t, reg.Loaded("a"))
	assert.False(t, reg.Loaded("b"))
	assert.Equal(t, []string{"b"}, detached)

	reg.Close()
	assert.Equal(t, 0, reg.Len())
	assert.Len(t, detached, 3)
}

func TestRegistry_CascadeFollowsFeatureFlag(t *testing.T) {
	flags := config.NewFeatureFlags(config.FeaturesConfig{AchievementCascade: true, AchievementCascadeRollout: 100})
	flags.SetOverride("solo", config.FeatureAchievementCascade, false)
	store := newStore(t)
	ctx := context.Background()

	// 90 XP into level 1: the first_conversation reward crosses into level 2,
	// which satisfies developing_mind only in a follow-up round.
	st := progression.NewProgressionState()
	st.Experience = 90
	st.ExperienceByType[progression.TrackEmotional] = 90
	require.NoError(t, store.Save(ctx, "luna", st))
	require.NoError(t, store.Save(ctx, "solo", st))

	reg := NewRegistry(catalog.MustDefault(), store, flags, DefaultConfig(), nil)
	award := func(id string) progression.ProgressionState {
		s, err := reg.Get(ctx, id)
		require.NoError(t, err)
		_, err = s.System().AddExperience(progression.TrackConversation, nil)
		require.NoError(t, err)
		return s.System().Evolution()
	}

	luna := award("luna")
	assert.Equal(t, 2, luna.Level)
	assert.True(t, luna.HasAchievement("developing_mind"))

	solo := award("solo")
	assert.Equal(t, 2, solo.Level)
	assert.True(t, solo.HasAchievement("first_conversation"))
	assert.False(t, solo.HasAchievement("developing_mind"))
}

func TestRegistry_EvictOnRemote(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	_, err := reg.Get(context.Background(), "luna")
	require.NoError(t, err)

	remote := false
	handler := reg.EvictOnRemote(func(shared.Event) bool { return remote })
	ev := shared.EvolutionResetEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventEvolutionReset, "luna", time.Now()),
		CompanionID: "luna",
	}

	require.NoError(t, handler(ev))
	assert.True(t, reg.Loaded("luna"))

	remote = true
	require.NoError(t, handler(ev))
	assert.False(t, reg.Loaded("luna"))
}

func TestSession_ExecPropagatesError(t *testing.T) {
	reg := NewRegistry(catalog.MustDefault(), newStore(t), nil, DefaultConfig(), nil)
	s, err := reg.Get(context.Background(), "luna")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Exec(func(*progression.EvolutionSystem) error { return boom })
	assert.ErrorIs(t, err, boom)
}
