package maintenance

import (
	"context"
	"log/slog"
	"time"

	"gazelaundry/pkg/db"
	"gazelaundry/pkg/store"
)

// lastRunKey records when maintenance last completed.
const lastRunKey = "maintenance_last_run"

// Run prunes calibration history older than retention. A zero retention
// keeps everything. Failures are logged, never fatal for startup.
func Run(ctx context.Context, s store.StateStore, d *db.DB, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	if retention > 0 {
		n, err := d.PruneCalibrations(ctx, retention)
		if err != nil {
			slog.Error("Calibration pruning failed", "error", err)
		} else {
			slog.Info("Calibration pruning completed", "deleted", n, "retention", retention)
		}
	}

	if err := s.SetState(ctx, lastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to record maintenance run", "error", err)
	}
	return nil
}
