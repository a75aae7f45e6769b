// Package jobs contains the maintenance jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/pkg/timeutil"
)

// PruneHistoryJob removes journal entries older than the retention period.
type PruneHistoryJob struct {
	pruner    progression.HistoryPruner
	retention time.Duration
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewPruneHistoryJob creates the job. retention must be positive.
func NewPruneHistoryJob(pruner progression.HistoryPruner, retention time.Duration, clock timeutil.Clock, logger *slog.Logger) (*PruneHistoryJob, error) {
	if pruner == nil {
		return nil, fmt.Errorf("prune_history: pruner is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("prune_history: retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneHistoryJob{
		pruner:    pruner,
		retention: retention,
		clock:     timeutil.OrReal(clock),
		logger:    logger,
	}, nil
}

// Name returns the job name.
func (j *PruneHistoryJob) Name() string { return "prune_history" }

// Description returns a human-readable description of the job.
func (j *PruneHistoryJob) Description() string {
	return fmt.Sprintf("removes progression history older than %s", j.retention)
}

// Run deletes every entry that occurred before now minus the retention.
func (j *PruneHistoryJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-j.retention)

	n, err := j.pruner.PruneHistory(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune_history: %w", err)
	}
	if n > 0 {
		j.logger.Info("history pruned",
			"removed", n,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return nil
}
