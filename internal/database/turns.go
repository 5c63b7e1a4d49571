package database

import (
	"context"
	"fmt"
	"slices"
)

const turnColumns = "id, surface_id, role, content, created_at"

// AppendTurn writes one turn. Turn ids grow with every insert and define the
// order of a surface's history.
func (s *sqlxStore) AppendTurn(ctx context.Context, surfaceID int64, role, content string) (int64, error) {
	if role != RoleUser && role != RoleAssistant {
		return 0, fmt.Errorf("invalid turn role %q", role)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (surface_id, role, content, created_at) VALUES (?, ?, ?, ?);`,
		surfaceID, role, content, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error appending turn", "surface_id", surfaceID, "role", role, "error", err)
		return 0, fmt.Errorf("failed to append %s turn to surface %d: %w", role, surfaceID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new turn id: %w", err)
	}
	s.logger.DebugContext(ctx, "Turn appended", "surface_id", surfaceID, "turn_id", id, "role", role)
	return id, nil
}

// RecentTurns returns at most n of the latest turns, oldest first.
func (s *sqlxStore) RecentTurns(ctx context.Context, surfaceID int64, n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}

	turns := []Turn{}
	query := `SELECT ` + turnColumns + ` FROM turns WHERE surface_id = ? ORDER BY id DESC LIMIT ?;`
	if err := s.db.SelectContext(ctx, &turns, query, surfaceID, n); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent turns", "surface_id", surfaceID, "error", err)
		return nil, fmt.Errorf("failed to get recent turns of surface %d: %w", surfaceID, err)
	}
	slices.Reverse(turns)
	return turns, nil
}

// ListTurns returns the whole history of a surface, oldest first.
func (s *sqlxStore) ListTurns(ctx context.Context, surfaceID int64) ([]Turn, error) {
	turns := []Turn{}
	query := `SELECT ` + turnColumns + ` FROM turns WHERE surface_id = ? ORDER BY id ASC;`
	if err := s.db.SelectContext(ctx, &turns, query, surfaceID); err != nil {
		return nil, fmt.Errorf("failed to list turns of surface %d: %w", surfaceID, err)
	}
	return turns, nil
}

// DeleteTurns clears a surface's history and reports how many turns went.
func (s *sqlxStore) DeleteTurns(ctx context.Context, surfaceID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE surface_id = ?;`, surfaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete turns of surface %d: %w", surfaceID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	s.logger.InfoContext(ctx, "Surface context cleared", "surface_id", surfaceID, "deleted", deleted)
	return deleted, nil
}
