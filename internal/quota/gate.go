// Package quota implements the daily per-account request gate on top of an
// atomic expiring counter.
package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrUnavailable wraps every counter store failure. It is an infrastructure
// fault, never a rejection.
var ErrUnavailable = errors.New("quota store unavailable")

// CounterTTL is attached to a counter on its first increment of the day.
const CounterTTL = 24 * time.Hour

// CounterStore increments a counter and reports its new value in one atomic
// step, creating it with the given ttl when absent.
type CounterStore interface {
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool
	// Count is the counter value after this request's increment.
	Count int64
	// Limit is the configured daily limit, for message formatting.
	Limit int64
}

// Gate admits at most limit requests per account per calendar day.
type Gate struct {
	store  CounterStore
	limit  int64
	loc    *time.Location
	logger *slog.Logger
}

// NewGate builds a Gate. Calendar days are computed in loc.
func NewGate(store CounterStore, limit int64, loc *time.Location, logger *slog.Logger) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{
		store:  store,
		limit:  limit,
		loc:    loc,
		logger: logger.With("component", "quota_gate"),
	}
}

// Limit returns the configured daily limit.
func (g *Gate) Limit() int64 {
	return g.limit
}

// Key names the counter for an account on the calendar day containing day.
func (g *Gate) Key(accountID int64, day time.Time) string {
	return fmt.Sprintf("quota:%d:%s", accountID, day.In(g.loc).Format(time.DateOnly))
}

// Admit counts one request for the account on day. The request is admitted
// when the post-increment count is within the limit. A rejected request's
// increment stays committed, so the stored count always reflects every
// request seen that day.
func (g *Gate) Admit(ctx context.Context, accountID int64, day time.Time) (Decision, error) {
	key := g.Key(accountID, day)

	count, err := g.store.IncrementWithExpiry(ctx, key, CounterTTL)
	if err != nil {
		g.logger.ErrorContext(ctx, "Quota counter increment failed", "account_id", accountID, "key", key, "error", err)
		return Decision{Limit: g.limit}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	decision := Decision{Admitted: count <= g.limit, Count: count, Limit: g.limit}
	if !decision.Admitted {
		g.logger.InfoContext(ctx, "Daily quota exhausted", "account_id", accountID, "count", count, "limit", g.limit)
	} else {
		g.logger.DebugContext(ctx, "Request admitted", "account_id", accountID, "count", count, "limit", g.limit)
	}
	return decision, nil
}
