package progression

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aicompanion/companion-hub/pkg/logger"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVOLUTION SYSTEM
// Оркестратор прогрессии одного компаньона. Единственный владелец
// ProgressionState: все изменения идут через его методы под одним мьютексом.
// События копятся во время изменения и рассылаются после него в том же
// порядке, в каком происходили изменения.
// ══════════════════════════════════════════════════════════════════════════════

// Option настраивает EvolutionSystem.
type Option func(*EvolutionSystem)

// WithClock задаёт источник времени для перезарядок и меток событий.
func WithClock(c timeutil.Clock) Option {
	return func(s *EvolutionSystem) { s.clock = timeutil.OrReal(c) }
}

// WithLogger задаёт логгер.
func WithLogger(l *logger.Logger) Option {
	return func(s *EvolutionSystem) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMemory задаёт приёмник записей о вехах. По умолчанию используется
// сам компаньон, если он реализует MemorySink.
func WithMemory(m MemorySink) Option {
	return func(s *EvolutionSystem) { s.memory = m }
}

// WithState восстанавливает сохранённое состояние при создании.
func WithState(state ProgressionState) Option {
	return func(s *EvolutionSystem) {
		st := state.Clone()
		s.initial = &st
	}
}

// WithCascade включает или выключает каскад достижений: награда одного
// достижения может в том же вызове открыть следующее.
func WithCascade(enabled bool) Option {
	return func(s *EvolutionSystem) { s.cascade = enabled }
}

// AwardOption настраивает одно начисление опыта.
type AwardOption func(*awardConfig)

type awardConfig struct {
	multiplier float64
}

// WithMultiplier задаёт дополнительный множитель вызывающего кода.
func WithMultiplier(m float64) AwardOption {
	return func(c *awardConfig) { c.multiplier = m }
}

type subscription struct {
	id uint64
	fn func(Event)
}

// EvolutionSystem управляет опытом, уровнями, навыками, достижениями и
// способностями одного компаньона.
type EvolutionSystem struct {
	companionID string
	catalog     *Catalog
	calc        *ExperienceCalculator
	companion   Companion
	memory      MemorySink
	clock       timeutil.Clock
	log         *logger.Logger
	cascade     bool
	initial     *ProgressionState

	mu    sync.Mutex
	state ProgressionState

	// emitMu берётся изменяющими методами до mu и отпускается после рассылки.
	// Чтение берёт только mu, поэтому подписчик может читать состояние.
	emitMu sync.Mutex

	subsMu  sync.RWMutex
	subs    []subscription
	nextSub uint64
}

// NewEvolutionSystem создаёт оркестратор для компаньона.
// companion может быть nil: тогда эффекты личности не применяются.
func NewEvolutionSystem(companionID string, catalog *Catalog, companion Companion, opts ...Option) (*EvolutionSystem, error) {
	if catalog == nil || catalog.Skills == nil || catalog.Achievements == nil || catalog.Abilities == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidCatalog)
	}

	s := &EvolutionSystem{
		companionID: companionID,
		catalog:     catalog,
		calc:        NewExperienceCalculator(),
		companion:   companion,
		clock:       timeutil.RealClock{},
		log:         logger.Nop(),
		cascade:     true,
		state:       NewProgressionState(),
	}
	if sink, ok := companion.(MemorySink); ok {
		s.memory = sink
	}

	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("evolution"), logger.CompanionID(companionID))

	if s.initial != nil {
		if err := s.restoreLocked(*s.initial); err != nil {
			return nil, err
		}
		s.initial = nil
	}

	return s, nil
}

// CompanionID возвращает идентификатор компаньона.
func (s *EvolutionSystem) CompanionID() string {
	return s.companionID
}

// Catalog возвращает каталог, с которым работает система.
func (s *EvolutionSystem) Catalog() *Catalog {
	return s.catalog
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe регистрирует обработчик событий и возвращает функцию отписки.
// Обработчик вызывается синхронно; он может читать состояние системы, но не
// должен синхронно вызывать её изменяющие методы.
func (s *EvolutionSystem) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// lock захватывает emitMu, затем mu. Парный вызов - commit.
func (s *EvolutionSystem) lock() {
	s.emitMu.Lock()
	s.mu.Lock()
}

// commit отпускает мьютекс состояния, рассылает накопленные события и
// отпускает emitMu. Вызывается после lock.
func (s *EvolutionSystem) commit(events []Event) {
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	if len(events) == 0 {
		return
	}

	s.subsMu.RLock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, sub := range s.subs {
		handlers = append(handlers, sub.fn)
	}
	s.subsMu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			s.deliver(h, ev)
		}
	}
}

func (s *EvolutionSystem) deliver(h func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event subscriber panicked",
				logger.String("event", ev.Kind()),
				logger.Any("panic", r),
			)
		}
	}()
	h(ev)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

// AddExperience начисляет опыт за взаимодействие и возвращает размер награды.
//
// Порядок: расчёт награды с учётом уровня и множителей навыков, начисление,
// повышения уровня (событие level-up на каждый уровень), experience-gained,
// затем проверка достижений: achievement-unlocked записывается до применения
// награды, а повышения уровня от награды следуют за ним.
func (s *EvolutionSystem) AddExperience(track Track, m Metrics, opts ...AwardOption) (int, error) {
	cfg := awardConfig{multiplier: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !(cfg.multiplier > 0) || math.IsInf(cfg.multiplier, 0) {
		cfg.multiplier = 1
	}

	s.lock()

	multiplier := s.state.Multiplier(track) * cfg.multiplier
	amount, err := s.calc.Calculate(track, m, s.state.Level, multiplier)
	if err != nil {
		s.commit(nil)
		return 0, err
	}

	now := s.clock.Now()
	progress := s.creditLocked(track, amount, now)
	events := append(progress, ExperienceGained{Track: track, Amount: amount, OccurredAt: now})
	events = append(events, s.checkAchievementsLocked(track, now)...)

	s.log.Debug("experience awarded",
		logger.Track(string(track)),
		logger.XPAmount(amount),
		logger.CompanionLevel(s.state.Level),
	)

	s.commit(events)
	return amount, nil
}

// creditLocked добавляет опыт в трек и проводит повышения уровня.
func (s *EvolutionSystem) creditLocked(track Track, amount int, now time.Time) []Event {
	if amount <= 0 {
		return nil
	}
	s.state.Experience += amount
	s.state.ExperienceByType[track] += amount
	return s.levelUpLocked(now)
}

func (s *EvolutionSystem) levelUpLocked(now time.Time) []Event {
	var events []Event
	for s.state.Level < MaxLevel && s.state.Experience >= LevelThreshold(s.state.Level) {
		s.state.Experience -= LevelThreshold(s.state.Level)
		oldLevel := s.state.Level
		s.state.Level++
		s.state.AvailableSkillPoints += SkillPointsPerLevel

		events = append(events, LevelUp{OldLevel: oldLevel, NewLevel: s.state.Level, OccurredAt: now})
		s.log.Info("level up", logger.CompanionLevel(s.state.Level))
		s.remember(MemoryRecord{
			Kind:       MemoryLevelUp,
			Content:    fmt.Sprintf("Reached level %d", s.state.Level),
			Importance: 0.6,
			Tags:       []string{"growth", "level"},
			CreatedAt:  now,
		})

		if next := StageForLevel(s.state.Level); next.Rank() > s.state.Stage.Rank() {
			old := s.state.Stage
			s.state.Stage = next
			events = append(events, StageAdvanced{OldStage: old, NewStage: next, OccurredAt: now})
			s.log.Info("stage evolved", logger.String("stage", string(next)))
			s.remember(MemoryRecord{
				Kind:       MemoryStage,
				Content:    fmt.Sprintf("Evolved from %s to %s", old, next),
				Importance: 0.9,
				Tags:       []string{"growth", "stage", string(next)},
				CreatedAt:  now,
			})
		}
	}
	return events
}

// checkAchievementsLocked записывает выполненные достижения и применяет их
// награды. Опыт наград засчитывается треку track. При включённом каскаде
// проверка повторяется, пока появляются новые достижения; число раундов
// ограничено размером каталога.
func (s *EvolutionSystem) checkAchievementsLocked(track Track, now time.Time) []Event {
	var events []Event
	tracker := s.catalog.Achievements
	for round := 0; round <= tracker.Count(); round++ {
		ids := tracker.CheckAchievements(s.state)
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			def, err := tracker.Achievement(id)
			if err != nil {
				continue
			}
			s.state.UnlockedAchievements = append(s.state.UnlockedAchievements, id)
			events = append(events, AchievementUnlocked{Achievement: def, OccurredAt: now})
			events = append(events, s.applyRewardLocked(def, track, now)...)
		}
		if !s.cascade {
			break
		}
	}
	return events
}

func (s *EvolutionSystem) applyRewardLocked(def AchievementDefinition, track Track, now time.Time) []Event {
	r := def.Rewards
	s.log.Info("achievement unlocked",
		logger.AchievementID(string(def.ID)),
		logger.String("tier", string(def.Tier)),
	)

	s.state.AvailableSkillPoints += r.SkillPoints
	s.growPersonality(r.PersonalityBoost)
	for _, ab := range r.Abilities {
		s.grantAbilityLocked(ab)
	}

	if def.Tier.IsMilestone() {
		s.remember(MemoryRecord{
			Kind:       MemoryAchievement,
			Content:    fmt.Sprintf("Earned %s achievement: %s", def.Tier, def.Name),
			Importance: 0.5 + 0.1*float64(def.Tier.Rank()),
			Tags:       []string{"achievement", string(def.Tier)},
			CreatedAt:  now,
		})
	}

	return s.creditLocked(track, r.Experience, now)
}

// ══════════════════════════════════════════════════════════════════════════════
// SKILLS
// ══════════════════════════════════════════════════════════════════════════════

// UnlockSkill открывает навык за одно очко навыков. Возвращает false, если
// навык неизвестен, уже открыт, условия не выполнены или нет очков.
func (s *EvolutionSystem) UnlockSkill(id SkillID) bool {
	s.lock()

	skills := s.catalog.Skills
	if s.state.AvailableSkillPoints < 1 || !skills.CanUnlock(id, s.state.SkillSnapshot()) {
		s.log.Debug("skill unlock rejected",
			logger.SkillID(string(id)),
			logger.Int("skill_points", s.state.AvailableSkillPoints),
		)
		s.commit(nil)
		return false
	}
	def, err := skills.Skill(id)
	if err != nil {
		s.commit(nil)
		return false
	}

	now := s.clock.Now()
	s.state.AvailableSkillPoints--
	s.state.UnlockedSkills = append(s.state.UnlockedSkills, id)

	s.growPersonality(def.Effects.PersonalityGrowth)
	for _, ab := range def.Effects.UnlockAbilities {
		s.grantAbilityLocked(ab)
	}
	for t, m := range def.Effects.ExperienceMultipliers {
		s.state.ExperienceMultipliers[t] = s.state.Multiplier(t) * m
	}

	s.log.Info("skill unlocked",
		logger.SkillID(string(id)),
		logger.String("category", string(def.Category)),
	)

	events := []Event{SkillUnlocked{Skill: def, OccurredAt: now}}
	events = append(events, s.checkAchievementsLocked(def.Category.Track(), now)...)

	s.commit(events)
	return true
}

func (s *EvolutionSystem) growPersonality(deltas map[string]float64) {
	if len(deltas) == 0 {
		return
	}
	for trait, d := range deltas {
		s.state.PersonalityGrowth[trait] += d
	}
	if s.companion != nil {
		s.companion.UpdatePersonality(copyDeltas(deltas))
	}
}

func (s *EvolutionSystem) grantAbilityLocked(id AbilityID) {
	if s.state.HasAbility(id) {
		return
	}
	s.state.UnlockedAbilities = append(s.state.UnlockedAbilities, id)
	s.log.Debug("ability granted", logger.AbilityID(string(id)))
}

// ══════════════════════════════════════════════════════════════════════════════
// ABILITIES
// ══════════════════════════════════════════════════════════════════════════════

// UseAbility применяет способность. Возвращает false, если способность не
// открыта или ещё на перезарядке.
func (s *EvolutionSystem) UseAbility(id AbilityID) bool {
	s.lock()

	now := s.clock.Now()
	if !s.state.HasAbility(id) {
		s.log.Debug("ability not unlocked", logger.AbilityID(string(id)))
		s.commit(nil)
		return false
	}
	if expiry, ok := s.state.AbilityCooldowns[id]; ok && now.Before(expiry) {
		s.log.Debug("ability on cooldown",
			logger.AbilityID(string(id)),
			logger.Duration("remaining", timeutil.Remaining(expiry, now)),
		)
		s.commit(nil)
		return false
	}
	def, err := s.catalog.Abilities.Ability(id)
	if err != nil {
		s.log.Warn("unlocked ability missing from catalog", logger.AbilityID(string(id)))
		s.commit(nil)
		return false
	}

	s.growPersonality(def.Effect.PersonalityNudge)
	if def.Effect.Emotion != "" {
		if eu, ok := s.companion.(EmotionUpdater); ok {
			eu.UpdateEmotion(def.Effect.Emotion, def.Effect.EmotionIntensity)
		}
	}

	expiry := now.Add(def.Cooldown)
	s.state.AbilityCooldowns[id] = expiry

	s.log.Info("ability used", logger.AbilityID(string(id)), logger.Time("cooldown_until", expiry))

	s.commit([]Event{AbilityUsed{Ability: def, CooldownExpiry: expiry, OccurredAt: now}})
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES & LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Evolution возвращает глубокую копию текущего состояния.
func (s *EvolutionSystem) Evolution() ProgressionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Stats вычисляет сводку по текущему состоянию при каждом вызове.
func (s *EvolutionSystem) Stats() EvolutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeStats(s.state, s.clock.Now())
}

// Reset полностью сбрасывает прогрессию в начальное состояние.
// Стадия возвращается в nascent явно.
func (s *EvolutionSystem) Reset() {
	s.lock()
	s.state = NewProgressionState()
	now := s.clock.Now()
	s.log.Info("evolution reset")
	s.commit([]Event{EvolutionReset{OccurredAt: now}})
}

// Restore заменяет состояние сохранённым после проверки инвариантов.
func (s *EvolutionSystem) Restore(state ProgressionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(state.Clone())
}

func (s *EvolutionSystem) restoreLocked(state ProgressionState) error {
	state.normalize()
	if err := state.Validate(); err != nil {
		return err
	}
	for _, id := range state.UnlockedSkills {
		if _, err := s.catalog.Skills.Skill(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}
	for _, id := range state.UnlockedAchievements {
		if _, err := s.catalog.Achievements.Achievement(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}
	s.state = state
	return nil
}

func (s *EvolutionSystem) remember(rec MemoryRecord) {
	if s.memory == nil {
		return
	}
	s.memory.AddMemory(rec)
}

func copyDeltas(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// IsUnknownID сообщает, что ошибка вызвана неизвестным идентификатором каталога.
func IsUnknownID(err error) bool {
	return errors.Is(err, ErrUnknownSkill) ||
		errors.Is(err, ErrUnknownAchievement) ||
		errors.Is(err, ErrUnknownAbility) ||
		errors.Is(err, ErrUnknownTrack)
}

// sortedAbilities возвращает копию списка способностей по алфавиту.
func sortedAbilities(ids []AbilityID) []AbilityID {
	out := append([]AbilityID{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
