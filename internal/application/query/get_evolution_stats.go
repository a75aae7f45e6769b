// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/application/session"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EVOLUTION STATS QUERY
// Сводка прогрессии для UI: уровень, прогресс до следующего уровня, опыт по
// трекам, готовность способностей.
//
// Кеш (cache-aside):
// - попадание отдаётся без загрузки сессии
// - при промахе сводка считается из состояния и кладётся в кеш
// - TTL не превышает ближайшего окончания перезарядки, чтобы готовность
//   способностей в кеше не устаревала
// - ошибки кеша не ломают запрос: сводка считается напрямую
// ══════════════════════════════════════════════════════════════════════════════

// GetEvolutionStatsQuery содержит параметры запроса сводки.
type GetEvolutionStatsQuery struct {
	// CompanionID - идентификатор компаньона.
	CompanionID string

	// SkipCache - пропустить кеш (например, сразу после команды).
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q GetEvolutionStatsQuery) Validate() error {
	if strings.TrimSpace(q.CompanionID) == "" {
		return shared.NewDomainError("query", "GetEvolutionStats", shared.ErrValidation, "companion_id is required")
	}
	return nil
}

// EvolutionStatsResult - сводка и признак того, откуда она получена.
type EvolutionStatsResult struct {
	Stats progression.EvolutionStats

	// Cached - сводка взята из кеша.
	Cached bool
}

// GetEvolutionStatsHandler обрабатывает запрос сводки.
type GetEvolutionStatsHandler struct {
	registry *session.Registry
	cache    progression.StatsCache
	flags    *config.FeatureFlags
	maxTTL   time.Duration
	log      *logger.Logger
}

// NewGetEvolutionStatsHandler создаёт обработчик. cache может быть nil.
func NewGetEvolutionStatsHandler(
	registry *session.Registry,
	cache progression.StatsCache,
	flags *config.FeatureFlags,
	maxTTL time.Duration,
	log *logger.Logger,
) *GetEvolutionStatsHandler {
	if maxTTL <= 0 {
		maxTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetEvolutionStatsHandler{
		registry: registry,
		cache:    cache,
		flags:    flags,
		maxTTL:   maxTTL,
		log:      log.With(logger.Operation("get_evolution_stats")),
	}
}

// Handle выполняет запрос.
func (h *GetEvolutionStatsHandler) Handle(ctx context.Context, q GetEvolutionStatsQuery) (*EvolutionStatsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	useCache := h.cacheEnabled(q.CompanionID) && !q.SkipCache

	if useCache {
		stats, err := h.cache.Get(ctx, q.CompanionID)
		switch {
		case err == nil:
			return &EvolutionStatsResult{Stats: stats, Cached: true}, nil
		case errors.Is(err, shared.ErrCacheMiss):
		default:
			h.log.Warn("stats cache read failed", logger.CompanionID(q.CompanionID), logger.Err(err))
			useCache = false
		}
	}

	sess, err := h.registry.Get(ctx, q.CompanionID)
	if err != nil {
		return nil, fmt.Errorf("get_evolution_stats: %w", err)
	}
	stats := sess.System().Stats()

	if useCache {
		if ttl := StatsTTL(stats, h.maxTTL); ttl > 0 {
			if err := h.cache.Set(ctx, q.CompanionID, stats, ttl); err != nil {
				h.log.Warn("stats cache write failed", logger.CompanionID(q.CompanionID), logger.Err(err))
			}
		}
	}

	return &EvolutionStatsResult{Stats: stats}, nil
}

func (h *GetEvolutionStatsHandler) cacheEnabled(companionID string) bool {
	if h.cache == nil {
		return false
	}
	if h.flags == nil {
		return true
	}
	return h.flags.IsEnabled(config.FeatureStatsCache, companionID)
}

// StatsTTL возвращает время жизни сводки в кеше: maxTTL или меньше, если
// какая-то способность выйдет из перезарядки раньше.
func StatsTTL(stats progression.EvolutionStats, maxTTL time.Duration) time.Duration {
	ttl := maxTTL
	for _, a := range stats.Abilities {
		if a.Remaining > 0 && a.Remaining < ttl {
			ttl = a.Remaining
		}
	}
	return ttl
}
