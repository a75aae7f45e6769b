package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/pkg/circuitbreaker"
)

// StatsCache implements progression.StatsCache. Calls go through a circuit
// breaker; while it is open every call fails fast with shared.ErrCacheUnavailable.
type StatsCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

var _ progression.StatsCache = (*StatsCache)(nil)

// NewStatsCache creates a StatsCache. A nil breaker gets the default cache breaker.
func NewStatsCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *StatsCache {
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(5, 30*time.Second, IsMiss, LogStateChange(slog.Default()))
	}
	return &StatsCache{cache: cache, breaker: breaker}
}

// Get returns cached stats or shared.ErrCacheMiss.
func (s *StatsCache) Get(ctx context.Context, companionID string) (progression.EvolutionStats, error) {
	var stats progression.EvolutionStats
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, StatsKey(companionID), &stats)
	})
	return stats, mapBreakerError(err)
}

// Set stores stats for ttl.
func (s *StatsCache) Set(ctx context.Context, companionID string, stats progression.EvolutionStats, ttl time.Duration) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StatsKey(companionID), stats, ttl)
	})
	return mapBreakerError(err)
}

// Invalidate removes the companion's cached stats.
func (s *StatsCache) Invalidate(ctx context.Context, companionID string) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Delete(ctx, StatsKey(companionID))
	})
	return mapBreakerError(err)
}

// Breaker exposes the breaker for health reporting.
func (s *StatsCache) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// IsMiss is the miss predicate to pass to circuitbreaker.CacheBreaker.
func IsMiss(err error) bool {
	return errors.Is(err, shared.ErrCacheMiss)
}

func mapBreakerError(err error) error {
	if circuitbreaker.IsRejected(err) {
		return shared.WrapError("cache", "Request", shared.ErrServiceUnavailable, "stats cache circuit is open", err)
	}
	return err
}

// LogStateChange returns a breaker callback that logs transitions.
func LogStateChange(logger *slog.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	}
}
