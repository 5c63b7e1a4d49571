package database

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlxStore {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, nil).(*sqlxStore)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"storage.db":                     "storage.db",
		"file:storage.db":                "storage.db",
		"file:storage.db?_pragma=wal":    "storage.db",
		"/var/lib/token%20bot/db.sqlite": "/var/lib/token bot/db.sqlite",
		":memory:":                       ":memory:",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractDBNameFromPath(in), "path %q", in)
	}
}

func TestAccountsAndBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	acc, err := s.CreateAccount(ctx, " alice@example.com ", 100)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acc.Email)

	byEmail, err := s.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byEmail.ID)

	_, err = s.CreateAccount(ctx, "alice@example.com", 100)
	assert.Error(t, err, "email is unique")

	ok, err := s.DecrementBalanceIf(ctx, acc.ID, 60)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DecrementBalanceIf(ctx, acc.ID, 60)
	require.NoError(t, err)
	assert.False(t, ok, "40 does not cover 60")

	require.NoError(t, s.IncrementBalance(ctx, acc.ID, 15))
	balance, err := s.Balance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(55), balance)

	_, err = s.DecrementBalanceIf(ctx, 9999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.IncrementBalance(ctx, 9999, 1), ErrNotFound)
	assert.ErrorIs(t, s.IncrementBalance(ctx, acc.ID, -1), ErrInvalidAmount)
	_, err = s.GetAccount(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecrementBalanceIfConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	acc, err := s.CreateAccount(ctx, "race@example.com", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.DecrementBalanceIf(ctx, acc.ID, 30)
			assert.NoError(t, err)
			if ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), succeeded.Load())
	balance, err := s.Balance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestTabs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	owner, err := s.CreateAccount(ctx, "owner@example.com", 0)
	require.NoError(t, err)
	other, err := s.CreateAccount(ctx, "other@example.com", 0)
	require.NoError(t, err)

	tabs, err := s.ListTabs(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, tabs, 1, "listing an empty account creates a tab")
	assert.Equal(t, DefaultTabName, tabs[0].Name)

	tabs, err = s.ListTabs(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, tabs, 1)

	second, err := s.CreateTab(ctx, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTabName, second.Name)

	renamed, err := s.RenameTab(ctx, owner.ID, second.ID, "  Research  ")
	require.NoError(t, err)
	assert.Equal(t, "Research", renamed.Name)

	t.Run("rename validation", func(t *testing.T) {
		_, err := s.RenameTab(ctx, owner.ID, second.ID, "   ")
		assert.ErrorIs(t, err, ErrInvalidName)
		_, err = s.RenameTab(ctx, owner.ID, second.ID, string(make([]rune, 51)))
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("foreign tabs are not found", func(t *testing.T) {
		_, err := s.RenameTab(ctx, other.ID, second.ID, "mine")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteTab(ctx, other.ID, second.ID), ErrNotFound)
		_, err = s.GetSurface(ctx, other.ID, second.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err = s.AppendTurn(ctx, second.ID, RoleUser, "hi")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTab(ctx, owner.ID, second.ID))

	turns, err := s.ListTurns(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, turns, "turns are removed with the tab")

	tabs, err = s.ListTabs(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, tabs, 1)
}

func TestGetOrCreateDialog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	acc, err := s.CreateAccount(ctx, "bot@example.com", 0)
	require.NoError(t, err)

	first, err := s.GetOrCreateDialog(ctx, acc.ID)
	require.NoError(t, err)
	second, err := s.GetOrCreateDialog(ctx, acc.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, SurfaceDialog, first.Kind)

	tabs, err := s.ListTabs(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, tabs[0].ID, "dialogs are not listed as tabs")
}

func TestTurns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	acc, err := s.CreateAccount(ctx, "turns@example.com", 0)
	require.NoError(t, err)
	tab, err := s.CreateTab(ctx, acc.ID, "t")
	require.NoError(t, err)

	contents := []string{"q1", "a1", "q2", "a2", "q3"}
	for i, c := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := s.AppendTurn(ctx, tab.ID, role, c)
		require.NoError(t, err)
	}

	_, err = s.AppendTurn(ctx, tab.ID, "system", "nope")
	assert.Error(t, err)

	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{2, []string{"a2", "q3"}},
		{3, []string{"q2", "a2", "q3"}},
		{10, contents},
	}
	for _, tt := range tests {
		turns, err := s.RecentTurns(ctx, tab.ID, tt.n)
		require.NoError(t, err)
		got := make([]string, 0, len(turns))
		for _, turn := range turns {
			got = append(got, turn.Content.String)
		}
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	deleted, err := s.DeleteTurns(ctx, tab.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(contents)), deleted)

	turns, err := s.RecentTurns(ctx, tab.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestIncrementWithExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementWithExpiry(ctx, "quota:1:2026-03-01", 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := s.IncrementWithExpiry(ctx, "quota:2:2026-03-01", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "keys are independent")

	clock = clock.Add(24 * time.Hour)
	got, err := s.IncrementWithExpiry(ctx, "quota:1:2026-03-01", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "expired counter restarts")

	clock = clock.Add(25 * time.Hour)
	deleted, err := s.DeleteExpiredCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = s.IncrementWithExpiry(ctx, "k", 0)
	assert.Error(t, err)
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunSQLMaintenance(ctx), context.Canceled)
}
