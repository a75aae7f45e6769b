package config

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// Feature names.
const (
	// FeatureAchievementCascade lets an achievement reward unlock further
	// achievements within the same award.
	FeatureAchievementCascade = "achievement_cascade"

	// FeatureStatsCache serves stats through the Redis cache.
	FeatureStatsCache = "stats_cache"

	// FeatureHistoryJournal records progression events in the history table.
	FeatureHistoryJournal = "history_journal"
)

// FeaturesConfig holds feature toggles parsed from FEATURE_* variables.
// A rollout below 100 enables the feature for a stable subset of companions.
type FeaturesConfig struct {
	AchievementCascade        bool `env:"ACHIEVEMENT_CASCADE" envDefault:"true"`
	AchievementCascadeRollout int  `env:"ACHIEVEMENT_CASCADE_ROLLOUT" envDefault:"100"`

	StatsCache        bool `env:"STATS_CACHE" envDefault:"true"`
	StatsCacheRollout int  `env:"STATS_CACHE_ROLLOUT" envDefault:"100"`

	HistoryJournal        bool `env:"HISTORY_JOURNAL" envDefault:"true"`
	HistoryJournalRollout int  `env:"HISTORY_JOURNAL_ROLLOUT" envDefault:"100"`
}

func (f FeaturesConfig) rollout(name string) int {
	switch name {
	case FeatureAchievementCascade:
		return f.AchievementCascadeRollout
	case FeatureStatsCache:
		return f.StatsCacheRollout
	case FeatureHistoryJournal:
		return f.HistoryJournalRollout
	default:
		return 0
	}
}

// Feature represents a single feature flag.
type Feature struct {
	Name    string
	Enabled bool

	// Rollout percentage (0-100). Companions are bucketed by a hash of
	// their ID so they stay in the same bucket.
	RolloutPercent int
}

// FeatureFlags evaluates feature toggles per companion.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// companionID -> feature -> enabled
	overrides map[string]map[string]bool
}

// NewFeatureFlags builds flags from parsed configuration.
func NewFeatureFlags(cfg FeaturesConfig) *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]map[string]bool),
	}
	ff.register(FeatureAchievementCascade, cfg.AchievementCascade, cfg.AchievementCascadeRollout)
	ff.register(FeatureStatsCache, cfg.StatsCache, cfg.StatsCacheRollout)
	ff.register(FeatureHistoryJournal, cfg.HistoryJournal, cfg.HistoryJournalRollout)
	return ff
}

func (ff *FeatureFlags) register(name string, enabled bool, rollout int) {
	ff.features[name] = &Feature{Name: name, Enabled: enabled, RolloutPercent: clampPercent(rollout)}
}

// IsEnabled checks if a feature is enabled for the companion.
// An empty companionID checks the global switch only.
func (ff *FeatureFlags) IsEnabled(name, companionID string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if companionID != "" {
		if o, ok := ff.overrides[companionID]; ok {
			if enabled, ok := o[name]; ok {
				return enabled
			}
		}
	}

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent < 100 && companionID != "" {
		return inRollout(companionID, name, f.RolloutPercent)
	}
	return f.RolloutPercent > 0
}

// inRollout uses consistent hashing so companions stay in their bucket.
func inRollout(companionID, name string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte(companionID))
	return int(h.Sum32()%100) < percent
}

// SetOverride forces a feature on or off for one companion.
func (ff *FeatureFlags) SetOverride(companionID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[companionID] == nil {
		ff.overrides[companionID] = make(map[string]bool)
	}
	ff.overrides[companionID][name] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return &FeatureFlagError{Feature: name, Message: "feature not found"}
	}
	f.RolloutPercent = clampPercent(percent)
	return nil
}

// Names returns registered feature names in sorted order.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make([]string, 0, len(ff.features))
	for name := range ff.features {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// FeatureFlagError represents a feature flag operation error.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return fmt.Sprintf("feature flag %q: %s", e.Feature, e.Message)
}
