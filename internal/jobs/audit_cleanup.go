package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/repository"
)

// DefaultAuditRetention is the fallback retention for audit entries.
const DefaultAuditRetention = 90 * 24 * time.Hour

// AuditCleanupArgs is a periodic maintenance job that purges old audit
// entries.
type AuditCleanupArgs struct{}

// Kind returns the job kind identifier for periodic audit cleanup.
func (AuditCleanupArgs) Kind() string { return "audit_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (AuditCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// AuditCleanupWorker deletes audit entries older than the configured
// retention duration.
type AuditCleanupWorker struct {
	river.WorkerDefaults[AuditCleanupArgs]
	store     repository.AdminStore
	retention time.Duration
}

// NewAuditCleanupWorker creates a cleanup worker. Non-positive retention
// falls back to the 90-day default.
func NewAuditCleanupWorker(store repository.AdminStore, retention time.Duration) *AuditCleanupWorker {
	if retention <= 0 {
		retention = DefaultAuditRetention
	}
	return &AuditCleanupWorker{store: store, retention: retention}
}

// Work removes expired audit rows.
func (w *AuditCleanupWorker) Work(ctx context.Context, _ *river.Job[AuditCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("audit cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	deleted, err := w.store.PurgeAuditBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge audit entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("audit cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
