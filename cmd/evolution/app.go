package main

import (
	"context"
	"fmt"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/application/command"
	"github.com/aicompanion/companion-hub/internal/application/eventhandler"
	"github.com/aicompanion/companion-hub/internal/application/query"
	"github.com/aicompanion/companion-hub/internal/application/session"
	"github.com/aicompanion/companion-hub/internal/catalog"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/companion"
	"github.com/aicompanion/companion-hub/internal/infrastructure/messaging"
	"github.com/aicompanion/companion-hub/internal/infrastructure/persistence/postgres"
	rediscache "github.com/aicompanion/companion-hub/internal/infrastructure/persistence/redis"
	"github.com/aicompanion/companion-hub/internal/infrastructure/persistence/sqlite"
	"github.com/aicompanion/companion-hub/internal/infrastructure/scheduler"
	"github.com/aicompanion/companion-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/aicompanion/companion-hub/internal/interface/http"
	"github.com/aicompanion/companion-hub/internal/interface/http/handlers"
	"github.com/aicompanion/companion-hub/pkg/circuitbreaker"
	"github.com/aicompanion/companion-hub/pkg/logger"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// СБОРКА ПРИЛОЖЕНИЯ
// Общая для serve и simulate: хранилище, кеш, шина событий, реестр сессий,
// журнал истории и обработчики команд/запросов.
// ══════════════════════════════════════════════════════════════════════════════

// eventBus - шина с освобождением ресурсов.
type eventBus interface {
	shared.EventBus
	Close() error
}

// app содержит собранные зависимости.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	clock   timeutil.Clock
	catalog *progression.Catalog
	flags   *config.FeatureFlags

	repo       progression.Repository
	pruner     progression.HistoryPruner
	statsCache progression.StatsCache
	bus        eventBus
	registry   *session.Registry
	persister  *command.Persister
	health     *handlers.CompositeHealthChecker
	scheduler  *scheduler.Scheduler

	closers []func()
}

// newApp собирает приложение по конфигурации. При ошибке уже открытые
// ресурсы закрываются.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		clock:  timeutil.RealClock{},
		flags:  config.NewFeatureFlags(cfg.Features),
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	var err error

	// ─────────────────────────────────────────────────────────────────────────
	// 1. КАТАЛОГ
	// ─────────────────────────────────────────────────────────────────────────
	a.catalog, err = catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ ПРОГРЕССИИ
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS: КЕШ СВОДОК И ШИНА СОБЫТИЙ (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openRedis(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕЕСТР СЕССИЙ И ЖУРНАЛ
	// ─────────────────────────────────────────────────────────────────────────
	a.registry = session.NewRegistry(a.catalog, a.repo, a.flags, session.Config{
		MaxSessions:     a.cfg.App.MaxSessions,
		ProfileMemories: companion.DefaultMaxMemories,
		Clock:           a.clock,
		Attach: func(sys *progression.EvolutionSystem) func() {
			return messaging.Bridge(sys, a.bus, a.log.Slog())
		},
	}, a.log)
	a.closers = append(a.closers, a.registry.Close)

	if err := a.bus.SubscribeAll(a.registry.EvictOnRemote(messaging.IsRemote)); err != nil {
		return fmt.Errorf("subscribe session eviction: %w", err)
	}

	journal := eventhandler.NewHistoryJournalHandler(
		a.repo, a.flags, messaging.IsRemote, a.log.Slog(), eventhandler.DefaultHistoryJournalConfig(),
	)
	if err := journal.Register(a.bus); err != nil {
		return fmt.Errorf("register history journal: %w", err)
	}

	a.persister = command.NewPersister(a.registry, a.repo, a.statsCache, command.PersisterConfig{
		SaveAttempts: a.cfg.Storage.SaveAttempts,
		SaveBackoff:  a.cfg.Storage.SaveBackoff,
	}, a.log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	return a.buildScheduler()
}

// buildScheduler регистрирует очистку журнала. Запускается только в serve.
func (a *app) buildScheduler() error {
	a.scheduler = scheduler.New(scheduler.Config{Logger: a.log.Slog(), Clock: a.clock})
	a.closers = append(a.closers, a.scheduler.Stop)

	retention := a.cfg.Storage.HistoryRetention
	if retention <= 0 || a.pruner == nil {
		return nil
	}
	job, err := jobs.NewPruneHistoryJob(a.pruner, retention, a.clock, a.log.Slog())
	if err != nil {
		return err
	}
	if err := a.scheduler.Register(job, scheduler.Every(a.cfg.Storage.PruneInterval)); err != nil {
		return fmt.Errorf("register prune job: %w", err)
	}
	return nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		a.log.Info("connecting to postgres")
		conn, err := postgres.NewConnection(ctx, postgres.Config{
			URL:             a.cfg.Database.URL,
			MaxConns:        int32(a.cfg.Database.MaxOpenConns),
			MinConns:        int32(a.cfg.Database.MinConns),
			MaxConnLifetime: a.cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: a.cfg.Database.ConnMaxIdleTime,
			QueryTimeout:    a.cfg.Database.QueryTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, conn.Close)

		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		repo := postgres.NewProgressionRepository(conn)
		a.repo = repo
		a.pruner = repo
		a.health.AddCheck("storage", handlers.NewPingCheck(conn))

	default:
		a.log.Info("opening sqlite store", logger.String("path", a.cfg.Storage.SQLitePath))
		store, err := sqlite.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.repo = store
		a.pruner = store
		a.health.AddCheck("storage", handlers.NewPingCheck(store))
	}
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	if a.cfg.Redis.Disabled {
		a.log.Info("redis disabled: stats cache off, in-memory event bus")
		a.bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
			Logger:        a.log.Slog(),
			EnableMetrics: true,
		})
		a.closers = append(a.closers, func() { _ = a.bus.Close() })
		return nil
	}

	rc := a.cfg.Redis
	cache, err := rediscache.NewCache(ctx, rediscache.Config{
		URL:          rc.URL,
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.health.AddCheck("cache", handlers.NewPingCheck(cache))

	breaker := circuitbreaker.CacheBreaker(
		rc.BreakerThreshold, rc.BreakerTimeout,
		rediscache.IsMiss, rediscache.LogStateChange(a.log.Slog()),
	)
	stats := rediscache.NewStatsCache(cache, breaker)
	a.statsCache = stats
	a.health.AddCheck("cache_breaker", func(context.Context) error {
		if st := stats.Breaker().State(); st == circuitbreaker.StateOpen {
			return fmt.Errorf("stats cache circuit is %s", st)
		}
		return nil
	})

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client: cache.Client(),
		Logger: a.log.Slog(),
	})
	if err != nil {
		return fmt.Errorf("start redis event bus: %w", err)
	}
	a.bus = bus
	// шина закрывается раньше клиента redis
	a.closers = append(a.closers, func() { _ = bus.Close() })
	return nil
}

// httpDependencies собирает обработчики для HTTP API.
func (a *app) httpDependencies() httpserver.Dependencies {
	return httpserver.Dependencies{
		AwardExperience:   command.NewAwardExperienceHandler(a.persister, a.log),
		UnlockSkill:       command.NewUnlockSkillHandler(a.persister, a.log),
		UseAbility:        command.NewUseAbilityHandler(a.persister, a.clock, a.log),
		ResetEvolution:    command.NewResetEvolutionHandler(a.persister, a.log),
		GetEvolution:      query.NewGetEvolutionHandler(a.registry),
		GetEvolutionStats: query.NewGetEvolutionStatsHandler(a.registry, a.statsCache, a.flags, a.cfg.Redis.StatsTTL, a.log),
		GetHistory:        query.NewGetHistoryHandler(a.repo),
		ListCatalog:       query.NewListCatalogHandler(a.catalog),
		HealthChecker:     a.health,
		Logger:            a.log,
	}
}

// Close освобождает ресурсы в обратном порядке открытия.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
