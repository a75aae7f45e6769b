// Package session держит в памяти по одному EvolutionSystem на компаньона.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/internal/infrastructure/companion"
	"github.com/aicompanion/companion-hub/pkg/logger"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// SESSION REGISTRY
// Реестр активных компаньонов.
//
// Ключевые функции:
// 1. Ленивая загрузка состояния из хранилища (singleflight: один Load на id)
// 2. Новый компаньон без сохранённого состояния начинает с уровня 1
// 3. Подключение событий системы к шине через Attach
// 4. Вытеснение давно неиспользуемых сессий при превышении MaxSessions
// 5. Вытеснение по событиям других инстансов: следующий запрос перечитает
//    состояние из хранилища
// ═══════════════════════════════════════════════════════════════════════════

// ErrInvalidCompanionID - пустой или некорректный идентификатор компаньона.
var ErrInvalidCompanionID = shared.NewDomainError("session", "Get", shared.ErrInvalidID, "companion id is required")

// ErrSessionClosed - сессия выгружена; состояние нужно перечитать через Get.
var ErrSessionClosed = errors.New("session: closed")

// execAttempts - сколько раз Registry.Exec перечитывает закрытую сессию.
const execAttempts = 3

// Config содержит настройки реестра.
type Config struct {
	// MaxSessions - максимум компаньонов в памяти.
	MaxSessions int

	// ProfileMemories - размер списка воспоминаний профиля.
	ProfileMemories int

	// Clock - источник времени для перезарядок; по умолчанию системные часы.
	Clock timeutil.Clock

	// Attach подключает систему к внешним подписчикам (шина событий).
	// Возвращаемая функция вызывается при вытеснении.
	Attach func(sys *progression.EvolutionSystem) (detach func())
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxSessions:     1000,
		ProfileMemories: companion.DefaultMaxMemories,
	}
}

// Session - загруженный компаньон.
type Session struct {
	system  *progression.EvolutionSystem
	profile *companion.Profile
	detach  func()

	// mu сериализует команду и сохранение её результата.
	mu     sync.Mutex
	closed bool

	lastUsed time.Time
}

// System возвращает оркестратор прогрессии.
func (s *Session) System() *progression.EvolutionSystem {
	return s.system
}

// Profile возвращает профиль личности компаньона.
func (s *Session) Profile() *companion.Profile {
	return s.profile
}

// Exec выполняет fn эксклюзивно для сессии: изменение и сохранение состояния
// не перемешиваются с другими командами того же компаньона.
// Для выгруженной сессии возвращает ErrSessionClosed, не вызывая fn.
func (s *Session) Exec(fn func(sys *progression.EvolutionSystem) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(s.system)
}

// Registry хранит сессии компаньонов.
type Registry struct {
	catalog *progression.Catalog
	repo    progression.Repository
	flags   *config.FeatureFlags
	config  Config
	clock   timeutil.Clock
	log     *logger.Logger

	loads singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry создаёт реестр.
func NewRegistry(
	catalog *progression.Catalog,
	repo progression.Repository,
	flags *config.FeatureFlags,
	cfg Config,
	log *logger.Logger,
) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		catalog:  catalog,
		repo:     repo,
		flags:    flags,
		config:   cfg,
		clock:    timeutil.OrReal(cfg.Clock),
		log:      log.With(logger.Component("session_registry")),
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию компаньона, загружая её при необходимости.
func (r *Registry) Get(ctx context.Context, companionID string) (*Session, error) {
	companionID = strings.TrimSpace(companionID)
	if companionID == "" {
		return nil, ErrInvalidCompanionID
	}

	if s := r.lookup(companionID); s != nil {
		return s, nil
	}

	v, err, _ := r.loads.Do(companionID, func() (interface{}, error) {
		if s := r.lookup(companionID); s != nil {
			return s, nil
		}
		s, err := r.load(ctx, companionID)
		if err != nil {
			return nil, err
		}
		r.insert(companionID, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Exec выполняет fn в сессии компаньона. Если сессия была выгружена, пока
// команда ждала своей очереди, состояние перечитывается и fn выполняется на
// свежей сессии.
func (r *Registry) Exec(ctx context.Context, companionID string, fn func(sys *progression.EvolutionSystem) error) error {
	for attempt := 0; attempt < execAttempts; attempt++ {
		s, err := r.Get(ctx, companionID)
		if err != nil {
			return err
		}
		if err := s.Exec(fn); !errors.Is(err, ErrSessionClosed) {
			return err
		}
		r.log.Debug("session closed while waiting, reloading",
			logger.CompanionID(companionID),
			logger.Int("attempt", attempt+1),
		)
	}
	return shared.NewDomainError("session", "Exec", shared.ErrServiceUnavailable, "session keeps closing, try again")
}

func (r *Registry) lookup(companionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[companionID]
	if !ok {
		return nil
	}
	s.lastUsed = r.clock.Now()
	return s
}

func (r *Registry) load(ctx context.Context, companionID string) (*Session, error) {
	start := time.Now()

	opts := []progression.Option{
		progression.WithClock(r.clock),
		progression.WithLogger(r.log),
		progression.WithCascade(r.cascadeEnabled(companionID)),
	}

	state, err := r.repo.Load(ctx, companionID)
	switch {
	case err == nil:
		opts = append(opts, progression.WithState(state))
	case errors.Is(err, shared.ErrProgressionNotFound):
		r.log.Debug("no stored progression, starting fresh", logger.CompanionID(companionID))
	default:
		return nil, fmt.Errorf("load progression for %s: %w", companionID, err)
	}

	profile := companion.NewProfile(nil, r.config.ProfileMemories)
	sys, err := progression.NewEvolutionSystem(companionID, r.catalog, profile, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore progression for %s: %w", companionID, err)
	}

	s := &Session{system: sys, profile: profile, lastUsed: r.clock.Now()}
	if r.config.Attach != nil {
		s.detach = r.config.Attach(sys)
	}

	r.log.Debug("session loaded",
		logger.CompanionID(companionID),
		logger.CompanionLevel(sys.Stats().Level),
		logger.Latency(time.Since(start)),
	)
	return s, nil
}

// cascadeEnabled: без флагов каскад включён, как и в самой системе.
func (r *Registry) cascadeEnabled(companionID string) bool {
	if r.flags == nil {
		return true
	}
	return r.flags.IsEnabled(config.FeatureAchievementCascade, companionID)
}

func (r *Registry) insert(companionID string, s *Session) {
	r.mu.Lock()
	r.sessions[companionID] = s
	var victims []*Session
	for len(r.sessions) > r.config.MaxSessions {
		id, oldest := r.oldestLocked(companionID)
		if oldest == nil {
			break
		}
		delete(r.sessions, id)
		victims = append(victims, oldest)
		r.log.Debug("session evicted", logger.CompanionID(id), logger.String("reason", "capacity"))
	}
	r.mu.Unlock()

	for _, v := range victims {
		v.close()
	}
}

// oldestLocked находит самую давно использованную сессию, кроме keep.
func (r *Registry) oldestLocked(keep string) (string, *Session) {
	var (
		oldestID string
		oldest   *Session
	)
	for id, s := range r.sessions {
		if id == keep {
			continue
		}
		if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
			oldestID, oldest = id, s
		}
	}
	return oldestID, oldest
}

// Evict выгружает сессию. Следующий Get перечитает состояние из хранилища.
func (r *Registry) Evict(companionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[companionID]
	if ok {
		delete(r.sessions, companionID)
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// Discard выгружает сессию, которой принадлежит sys, и закрывает её.
// Вызывается только внутри Session.Exec этой сессии: команды, ждущие в
// очереди, получат ErrSessionClosed и перечитают сохранённое состояние.
func (r *Registry) Discard(sys *progression.EvolutionSystem) {
	id := sys.CompanionID()
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.system == sys {
		delete(r.sessions, id)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		s.closeLocked()
	}
}

// EvictOnRemote возвращает обработчик шины, который выгружает сессию, если
// компаньон изменён другим инстансом.
func (r *Registry) EvictOnRemote(isRemote func(shared.Event) bool) shared.EventHandler {
	return func(event shared.Event) error {
		if !isRemote(event) {
			return nil
		}
		if r.Evict(event.AggregateID()) {
			r.log.Debug("session evicted",
				logger.CompanionID(event.AggregateID()),
				logger.String("reason", "remote_change"),
				logger.String("event", string(event.EventType())),
			)
		}
		return nil
	}
}

// Len возвращает число загруженных сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Loaded сообщает, загружена ли сессия компаньона.
func (r *Registry) Loaded(companionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[companionID]
	return ok
}

// Catalog возвращает каталог прогрессии.
func (r *Registry) Catalog() *progression.Catalog {
	return r.catalog
}

// Close отключает все сессии от шины.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

// close ждёт завершения текущей команды и отключает сессию.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	s.closed = true
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}
