package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionMetrics counts sweep activity.
type RetentionMetrics interface {
	AddRetentionErased(n int)
}

// RetentionGuard erases audit record payloads once they are fully past
// the statutory window, and nothing sooner. It is the only component
// permitted to touch committed records, and it only ever clears payload
// fields: sequence numbers and hashes survive so the chain keeps
// verifying across erased entries. Sweeps are idempotent and safe to run
// beside the committer, which by construction only writes inside the
// retention window.
type RetentionGuard struct {
	store     Store
	logger    *slog.Logger
	metrics   RetentionMetrics
	retention time.Duration
	clock     func() time.Time
	batchSize int
}

// RetentionConfig collects RetentionGuard dependencies. Zero values get
// statutory defaults.
type RetentionConfig struct {
	Store     Store
	Logger    *slog.Logger
	Metrics   RetentionMetrics
	Retention time.Duration
	Clock     func() time.Time
	BatchSize int
}

// NewRetentionGuard constructs a guard with the statutory default
// window unless overridden.
func NewRetentionGuard(cfg RetentionConfig) *RetentionGuard {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = RetentionDays * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &RetentionGuard{
		store:     cfg.Store,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		retention: cfg.Retention,
		clock:     cfg.Clock,
		batchSize: cfg.BatchSize,
	}
}

// Sweep erases payloads of records older than the retention window and
// returns how many were erased. Records inside the window are never
// candidates; if one surfaces anyway the sweep aborts with
// ErrRetention rather than erasing it.
func (g *RetentionGuard) Sweep(ctx context.Context) (int, error) {
	cutoff := g.clock().UTC().Add(-g.retention)
	erased := 0
	for {
		batch, err := g.store.ExpiredBefore(ctx, cutoff, g.batchSize)
		if err != nil {
			return erased, err
		}
		if len(batch) == 0 {
			break
		}
		for _, rec := range batch {
			if !rec.Timestamp.Before(cutoff) {
				return erased, fmt.Errorf("%w: record %d dated %s", ErrRetention, rec.SequenceNo, rec.Timestamp.Format(time.RFC3339))
			}
			if err := g.store.ErasePayload(ctx, rec.SequenceNo); err != nil {
				return erased, err
			}
			erased++
		}
		if len(batch) < g.batchSize {
			break
		}
	}
	if erased > 0 {
		if g.metrics != nil {
			g.metrics.AddRetentionErased(erased)
		}
		g.logger.Info("retention sweep erased payloads", slog.Int("count", erased))
	}
	return erased, nil
}
