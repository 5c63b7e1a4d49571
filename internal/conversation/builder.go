// Package conversation assembles the bounded prompt context for a model call
// from a surface's persisted turns.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/llm"
)

// TurnReader reads a surface's latest turns, oldest first.
type TurnReader interface {
	RecentTurns(ctx context.Context, surfaceID int64, n int) ([]database.Turn, error)
}

// Builder turns stored history into llm messages.
type Builder struct {
	turns    TurnReader
	maxTurns int
}

// NewBuilder creates a Builder that keeps at most maxTurns stored turns.
func NewBuilder(turns TurnReader, maxTurns int) *Builder {
	return &Builder{turns: turns, maxTurns: maxTurns}
}

// MaxTurns reports the window size.
func (b *Builder) MaxTurns() int {
	return b.maxTurns
}

// Build returns the latest stored turns of the surface followed by question
// as a trailing user message. Stored turns with a missing or unknown role or
// missing content are skipped.
func (b *Builder) Build(ctx context.Context, surfaceID int64, question string) ([]llm.Message, error) {
	turns, err := b.turns.RecentTurns(ctx, surfaceID, b.maxTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to load context for surface %d: %w", surfaceID, err)
	}

	messages := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		if !t.Role.Valid || !t.Content.Valid || strings.TrimSpace(t.Content.String) == "" {
			continue
		}
		switch t.Role.String {
		case database.RoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: t.Content.String})
		case database.RoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: t.Content.String})
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: question}), nil
}
