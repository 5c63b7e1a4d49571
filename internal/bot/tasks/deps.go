// Package tasks implements the scheduled maintenance tasks.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/tokenbot/internal/database"
)

// CounterSweeper removes quota counters whose window has passed. Redis
// expires keys itself and has no sweeper.
type CounterSweeper interface {
	DeleteExpiredCounters(ctx context.Context) (int64, error)
}

// TaskDeps contains the dependencies of scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Counters CounterSweeper
}
