package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-gov/meridian/internal/jobs"
	"github.com/meridian-gov/meridian/internal/ledger"
)

// NewRetentionSweepHandler returns the handler erasing audit record
// payloads past the statutory window. A RetentionViolation aborts the
// run and is retried by asynq; it signals a bug in cutoff computation,
// never a condition to ignore.
func NewRetentionSweepHandler(guard *ledger.RetentionGuard, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("retention_sweep")
		erased, err := guard.Sweep(ctx)
		if err != nil {
			logger.Error("retention sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("retention sweep finished", slog.Int("erased", erased))
		return tracker.End(nil)
	}
}
