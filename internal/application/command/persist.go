// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/aicompanion/companion-hub/internal/application/session"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/pkg/logger"
	"github.com/aicompanion/companion-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE PERSISTENCE
// Every command mutates an in-memory EvolutionSystem and then saves the full
// state document. Saves are retried on transient storage errors. When a save
// finally fails the session is discarded: queued and later commands reload the
// last persisted state instead of running on unsaved progress.
// ══════════════════════════════════════════════════════════════════════════════

// PersisterConfig configures state saves.
type PersisterConfig struct {
	SaveAttempts int
	SaveBackoff  time.Duration
}

// DefaultPersisterConfig returns default configuration.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		SaveAttempts: 3,
		SaveBackoff:  100 * time.Millisecond,
	}
}

// Persister saves command results and invalidates cached stats.
type Persister struct {
	registry *session.Registry
	repo     progression.Repository
	cache    progression.StatsCache
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewPersister creates a Persister. cache may be nil.
func NewPersister(
	registry *session.Registry,
	repo progression.Repository,
	cache progression.StatsCache,
	config PersisterConfig,
	log *logger.Logger,
) *Persister {
	if config.SaveAttempts < 1 {
		config = DefaultPersisterConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("persister"))

	retrier := retry.StorageRetrier(config.SaveAttempts, config.SaveBackoff, shared.IsRetryable,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("state save failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	return &Persister{
		registry: registry,
		repo:     repo,
		cache:    cache,
		retrier:  retrier,
		log:      log,
	}
}

// Save stores the current state of sys. Must be called inside Session.Exec.
func (p *Persister) Save(ctx context.Context, sys *progression.EvolutionSystem) error {
	id := sys.CompanionID()
	state := sys.Evolution()

	err := p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.repo.Save(ctx, id, state)
	})
	if err != nil {
		p.log.Error("state save failed, discarding session", logger.CompanionID(id), logger.Err(err))
		p.registry.Discard(sys)
		return fmt.Errorf("save progression for %s: %w", id, err)
	}

	p.Invalidate(ctx, id)
	return nil
}

// Invalidate drops cached stats. Cache failures are logged, not returned.
func (p *Persister) Invalidate(ctx context.Context, companionID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx, companionID); err != nil {
		p.log.Warn("stats cache invalidation failed", logger.CompanionID(companionID), logger.Err(err))
	}
}

// Registry returns the session registry.
func (p *Persister) Registry() *session.Registry {
	return p.registry
}

// Repository returns the progression repository.
func (p *Persister) Repository() progression.Repository {
	return p.repo
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// eventCollector records the kinds of events emitted during one command.
type eventCollector struct {
	kinds        []string
	levels       int
	achievements []progression.AchievementID
	stage        progression.Stage
}

// collect subscribes to sys until the returned func is called.
func collect(sys *progression.EvolutionSystem) (*eventCollector, func()) {
	c := &eventCollector{}
	unsubscribe := sys.Subscribe(func(ev progression.Event) {
		c.kinds = append(c.kinds, ev.Kind())
		switch e := ev.(type) {
		case progression.LevelUp:
			c.levels++
		case progression.StageAdvanced:
			c.stage = e.NewStage
		case progression.AchievementUnlocked:
			c.achievements = append(c.achievements, e.Achievement.ID)
		}
	})
	return c, unsubscribe
}

func invalid(op, message string) error {
	return shared.NewDomainError("command", op, shared.ErrValidation, message)
}
