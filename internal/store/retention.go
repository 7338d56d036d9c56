package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = time.Hour

// StartRetentionWorker deletes archived rows older than retention every hour
// until ctx is done. It returns immediately.
func StartRetentionWorker(ctx context.Context, archive Archive, retention time.Duration) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	ticker := time.NewTicker(retentionInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("archive retention worker started", "interval", retentionInterval, "retention", retention)

		sweepArchive(ctx, archive, retention)
		for {
			select {
			case <-ticker.C:
				sweepArchive(ctx, archive, retention)
			case <-ctx.Done():
				slog.Info("archive retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepArchive(ctx context.Context, archive Archive, retention time.Duration) {
	deleted, err := archive.Cleanup(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("archive retention sweep failed", "error", err)
		}
		return
	}
	if deleted > 0 {
		slog.Info("archive retention sweep removed rows", "count", deleted)
	}
}
