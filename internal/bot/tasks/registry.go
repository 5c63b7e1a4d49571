package tasks

import (
	"context"
)

// ScheduledTaskFunc is the signature of every scheduled task. ctx is
// cancelled when the scheduler shuts down.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the tasks keyed by their scheduler.tasks name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Store != nil {
		tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	}
	if deps.Counters != nil {
		tasks["quota_sweep"] = newQuotaSweepTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
