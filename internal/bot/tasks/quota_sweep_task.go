package tasks

import (
	"context"
	"fmt"
)

// newQuotaSweepTask deletes expired daily counters so that the counter
// table does not grow with every account-day.
func newQuotaSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "quota_sweep")

	return func(ctx context.Context) error {
		n, err := deps.Counters.DeleteExpiredCounters(ctx)
		if err != nil {
			return fmt.Errorf("quota sweep failed: %w", err)
		}
		if n > 0 {
			log.InfoContext(ctx, "Deleted expired quota counters", "count", n)
		}
		return nil
	}
}
