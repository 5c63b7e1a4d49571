package conversation_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/tokenbot/internal/conversation"
	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/llm"
)

type sliceTurns []database.Turn

func (s sliceTurns) RecentTurns(_ context.Context, _ int64, n int) ([]database.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(s) > n {
		return s[len(s)-n:], nil
	}
	return s, nil
}

type brokenTurns struct{}

func (brokenTurns) RecentTurns(context.Context, int64, int) ([]database.Turn, error) {
	return nil, errors.New("database is locked")
}

func turn(role, content string) database.Turn {
	return database.Turn{
		Role:    sql.NullString{String: role, Valid: true},
		Content: sql.NullString{String: content, Valid: true},
	}
}

func history(n int) sliceTurns {
	turns := make(sliceTurns, 0, n)
	for i := range n {
		role := database.RoleUser
		if i%2 == 1 {
			role = database.RoleAssistant
		}
		turns = append(turns, turn(role, fmt.Sprintf("m%d", i)))
	}
	return turns
}

func TestBuildLength(t *testing.T) {
	t.Parallel()

	tests := []struct{ h, w int }{
		{0, 10}, {3, 10}, {10, 10}, {25, 10}, {5, 0}, {1, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("H=%d W=%d", tt.h, tt.w), func(t *testing.T) {
			t.Parallel()
			hist := history(tt.h)
			b := conversation.NewBuilder(hist, tt.w)

			msgs, err := b.Build(context.Background(), 1, "question")
			require.NoError(t, err)

			want := min(tt.h, tt.w) + 1
			require.Len(t, msgs, want)
			assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "question"}, msgs[len(msgs)-1])

			// The window is the most recent suffix, in stored order.
			offset := tt.h - (want - 1)
			for i, m := range msgs[:len(msgs)-1] {
				assert.Equal(t, hist[offset+i].Content.String, m.Content)
			}
		})
	}
}

func TestBuildSkipsMalformedTurns(t *testing.T) {
	t.Parallel()

	hist := sliceTurns{
		turn(database.RoleUser, "kept question"),
		{Role: sql.NullString{}, Content: sql.NullString{String: "no role", Valid: true}},
		{Role: sql.NullString{String: database.RoleAssistant, Valid: true}, Content: sql.NullString{}},
		turn(database.RoleAssistant, "   "),
		turn("system", "unknown role"),
		turn(database.RoleAssistant, "kept answer"),
	}
	b := conversation.NewBuilder(hist, 10)

	msgs, err := b.Build(context.Background(), 1, "next")
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "kept question"},
		{Role: llm.RoleAssistant, Content: "kept answer"},
		{Role: llm.RoleUser, Content: "next"},
	}, msgs)
}

func TestBuildStoreError(t *testing.T) {
	t.Parallel()
	_, err := conversation.NewBuilder(brokenTurns{}, 10).Build(context.Background(), 1, "q")
	assert.Error(t, err)
}

func TestBuildAgainstSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	acc, err := store.CreateAccount(ctx, "ctx@example.com", 0)
	require.NoError(t, err)
	dialog, err := store.GetOrCreateDialog(ctx, acc.ID)
	require.NoError(t, err)

	for i := range 6 {
		role := database.RoleUser
		if i%2 == 1 {
			role = database.RoleAssistant
		}
		_, err := store.AppendTurn(ctx, dialog.ID, role, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	msgs, err := conversation.NewBuilder(store, 4).Build(ctx, dialog.ID, "q")
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "m2"},
		{Role: llm.RoleAssistant, Content: "m3"},
		{Role: llm.RoleUser, Content: "m4"},
		{Role: llm.RoleAssistant, Content: "m5"},
		{Role: llm.RoleUser, Content: "q"},
	}, msgs)
}
