package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/messaging"
	"github.com/aicompanion/companion-hub/internal/infrastructure/persistence/sqlite"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func levelUp(companionID string) shared.LevelUpEvent {
	return shared.LevelUpEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventLevelUp, companionID, at),
		CompanionID: companionID,
		OldLevel:    1,
		NewLevel:    2,
	}
}

func experience(companionID string) shared.ExperienceGainedEvent {
	return shared.ExperienceGainedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventExperienceGained, companionID, at),
		CompanionID: companionID,
		Track:       "conversation",
		Amount:      12,
	}
}

func history(t *testing.T, store *sqlite.Store, companionID string) []progression.HistoryEntry {
	t.Helper()
	entries, err := store.History(context.Background(), companionID, 10)
	require.NoError(t, err)
	return entries
}

func TestHistoryJournal_RecordsEvents(t *testing.T) {
	store := newStore(t)
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })

	h := NewHistoryJournalHandler(store, nil, messaging.IsRemote, nil, DefaultHistoryJournalConfig())
	require.NoError(t, h.Register(bus))

	require.NoError(t, bus.Publish(experience("luna")))
	require.NoError(t, bus.Publish(levelUp("luna")))

	entries := history(t, store, "luna")
	require.Len(t, entries, 2)
	assert.Equal(t, progression.KindLevelUp, entries[0].Kind)
	assert.Equal(t, progression.KindExperienceGained, entries[1].Kind)
	assert.NotEmpty(t, entries[0].ID)
	assert.True(t, at.Equal(entries[0].OccurredAt))
	assert.JSONEq(t, `{"companion_id":"luna","old_level":1,"new_level":2}`, string(entries[0].Payload))
}

func TestHistoryJournal_SkipsRemoteEvents(t *testing.T) {
	store := newStore(t)
	h := NewHistoryJournalHandler(store, nil, messaging.IsRemote, nil, DefaultHistoryJournalConfig())

	remote := &messaging.RemoteEvent{
		Instance:  "other",
		Type:      shared.EventLevelUp,
		Aggregate: "luna",
		At:        at,
		Data:      map[string]interface{}{"new_level": 2},
	}
	require.NoError(t, h.Handle(remote))
	assert.Empty(t, history(t, store, "luna"))
}

func TestHistoryJournal_FeatureFlag(t *testing.T) {
	store := newStore(t)
	flags := config.NewFeatureFlags(config.FeaturesConfig{HistoryJournal: true, HistoryJournalRollout: 100})
	flags.SetOverride("sol", config.FeatureHistoryJournal, false)
	h := NewHistoryJournalHandler(store, flags, nil, nil, DefaultHistoryJournalConfig())

	require.NoError(t, h.Handle(levelUp("luna")))
	require.NoError(t, h.Handle(levelUp("sol")))

	assert.Len(t, history(t, store, "luna"), 1)
	assert.Empty(t, history(t, store, "sol"))
}

func TestHistoryJournal_ExperienceOptional(t *testing.T) {
	store := newStore(t)
	h := NewHistoryJournalHandler(store, nil, nil, nil, HistoryJournalConfig{RecordExperience: false})

	require.NoError(t, h.Handle(experience("luna")))
	require.NoError(t, h.Handle(levelUp("luna")))

	entries := history(t, store, "luna")
	require.Len(t, entries, 1)
	assert.Equal(t, progression.KindLevelUp, entries[0].Kind)
}

type brokenJournal struct {
	*sqlite.Store
}

func (brokenJournal) AppendHistory(context.Context, progression.HistoryEntry) error {
	return shared.WrapError("sqlite", "AppendHistory", shared.ErrStorageUnavailable, "disk full", errors.New("io"))
}

func TestHistoryJournal_ReturnsStorageErrors(t *testing.T) {
	h := NewHistoryJournalHandler(brokenJournal{newStore(t)}, nil, nil, nil, DefaultHistoryJournalConfig())

	err := h.Handle(levelUp("luna"))
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
}
