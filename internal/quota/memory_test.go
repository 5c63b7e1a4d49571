package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	n, err := m.IncrementWithExpiry(ctx, "a", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, _ = m.IncrementWithExpiry(ctx, "a", time.Hour)
	assert.Equal(t, int64(2), n)

	clock = clock.Add(time.Hour)
	n, _ = m.IncrementWithExpiry(ctx, "a", time.Hour)
	assert.Equal(t, int64(1), n, "expired counter restarts")

	_, _ = m.IncrementWithExpiry(ctx, "b", time.Minute)
	clock = clock.Add(2 * time.Minute)
	deleted, err := m.DeleteExpiredCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
