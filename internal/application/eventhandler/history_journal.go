// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aicompanion/companion-hub/config"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// HISTORY JOURNAL HANDLER
// Записывает события прогрессии в журнал (progression_history).
//
// Ключевые функции:
// 1. Одна запись на событие: id, вид события, payload, момент события
// 2. События других инстансов пропускаются: их журналирует инстанс-источник
// 3. Включается флагом history_journal для каждого компаньона отдельно
// 4. Ошибка записи логируется и возвращается шине, но не откатывает команду
// ═══════════════════════════════════════════════════════════════════════════

// eventKinds сопоставляет типы событий шины видам записей журнала.
var eventKinds = map[shared.EventType]string{
	shared.EventExperienceGained:    progression.KindExperienceGained,
	shared.EventLevelUp:             progression.KindLevelUp,
	shared.EventStageEvolved:        progression.KindStageEvolved,
	shared.EventSkillUnlocked:       progression.KindSkillUnlocked,
	shared.EventAchievementUnlocked: progression.KindAchievementUnlocked,
	shared.EventAbilityUsed:         progression.KindAbilityUsed,
	shared.EventEvolutionReset:      progression.KindEvolutionReset,
}

// HistoryJournalConfig содержит конфигурацию обработчика.
type HistoryJournalConfig struct {
	// Timeout - ограничение на запись одной записи.
	Timeout time.Duration

	// RecordExperience - журналировать experience-gained (самое частое событие).
	RecordExperience bool
}

// DefaultHistoryJournalConfig возвращает конфигурацию по умолчанию.
func DefaultHistoryJournalConfig() HistoryJournalConfig {
	return HistoryJournalConfig{
		Timeout:          5 * time.Second,
		RecordExperience: true,
	}
}

// HistoryJournalHandler записывает события в журнал прогрессии.
type HistoryJournalHandler struct {
	repo     progression.Repository
	flags    *config.FeatureFlags
	isRemote func(shared.Event) bool

	logger *slog.Logger
	config HistoryJournalConfig
}

// NewHistoryJournalHandler создаёт обработчик журнала.
// isRemote может быть nil: тогда все события считаются локальными.
func NewHistoryJournalHandler(
	repo progression.Repository,
	flags *config.FeatureFlags,
	isRemote func(shared.Event) bool,
	logger *slog.Logger,
	config HistoryJournalConfig,
) *HistoryJournalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHistoryJournalConfig().Timeout
	}
	if isRemote == nil {
		isRemote = func(shared.Event) bool { return false }
	}

	return &HistoryJournalHandler{
		repo:     repo,
		flags:    flags,
		isRemote: isRemote,
		logger:   logger.With("handler", "history_journal"),
		config:   config,
	}
}

// Handle записывает событие в журнал.
// Реализует интерфейс shared.EventHandler.
func (h *HistoryJournalHandler) Handle(event shared.Event) error {
	kind, ok := eventKinds[event.EventType()]
	if !ok || h.isRemote(event) {
		return nil
	}
	if kind == progression.KindExperienceGained && !h.config.RecordExperience {
		return nil
	}

	companionID := event.AggregateID()
	if h.flags != nil && !h.flags.IsEnabled(config.FeatureHistoryJournal, companionID) {
		return nil
	}

	envelope, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("history_journal: encode %s: %w", event.EventType(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	entry := progression.HistoryEntry{
		ID:          envelope.ID,
		CompanionID: companionID,
		Kind:        kind,
		Payload:     envelope.Payload,
		OccurredAt:  envelope.Timestamp,
	}
	if err := h.repo.AppendHistory(ctx, entry); err != nil {
		h.logger.Error("failed to append history entry",
			"companion_id", companionID,
			"kind", kind,
			"error", err,
		)
		return fmt.Errorf("history_journal: %w", err)
	}

	h.logger.Debug("history entry recorded",
		"companion_id", companionID,
		"kind", kind,
	)
	return nil
}

// Register подписывает обработчик на все события прогрессии.
func (h *HistoryJournalHandler) Register(bus shared.EventSubscriber) error {
	for eventType := range eventKinds {
		if err := bus.Subscribe(eventType, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}
	return nil
}
