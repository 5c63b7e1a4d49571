package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const surfaceColumns = "id, account_id, kind, name, created_at, updated_at"

func (s *sqlxStore) insertSurface(ctx context.Context, e sqlx.ExtContext, accountID int64, kind SurfaceKind, name string) (*Surface, error) {
	now := s.now()
	surface := &Surface{AccountID: accountID, Kind: kind, Name: name, CreatedAt: now, UpdatedAt: now}

	result, err := sqlx.NamedExecContext(ctx, e, `
        INSERT INTO surfaces (account_id, kind, name, created_at, updated_at)
        VALUES (:account_id, :kind, :name, :created_at, :updated_at);
    `, surface)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s for account %d: %w", kind, accountID, err)
	}
	if surface.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read new %s id: %w", kind, err)
	}
	return surface, nil
}

func (s *sqlxStore) ListTabs(ctx context.Context, accountID int64) ([]Surface, error) {
	var tabs []Surface
	err := s.withTx(ctx, "list_tabs", func(tx *sqlx.Tx) error {
		query := `SELECT ` + surfaceColumns + ` FROM surfaces WHERE account_id = ? AND kind = ? ORDER BY id ASC;`
		if err := tx.SelectContext(ctx, &tabs, query, accountID, SurfaceTab); err != nil {
			return fmt.Errorf("failed to list tabs of account %d: %w", accountID, err)
		}
		if len(tabs) > 0 {
			return nil
		}

		tab, err := s.insertSurface(ctx, tx, accountID, SurfaceTab, DefaultTabName)
		if err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "Created default tab", "account_id", accountID, "tab_id", tab.ID)
		tabs = []Surface{*tab}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tabs, nil
}

func (s *sqlxStore) CreateTab(ctx context.Context, accountID int64, name string) (*Surface, error) {
	if name == "" {
		name = DefaultTabName
	}
	name, err := validateTabName(name)
	if err != nil {
		return nil, err
	}

	tab, err := s.insertSurface(ctx, s.db, accountID, SurfaceTab, name)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating tab", "account_id", accountID, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "Tab created", "account_id", accountID, "tab_id", tab.ID)
	return tab, nil
}

func (s *sqlxStore) RenameTab(ctx context.Context, accountID, tabID int64, name string) (*Surface, error) {
	name, err := validateTabName(name)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
        UPDATE surfaces SET name = ?, updated_at = ?
        WHERE id = ? AND account_id = ? AND kind = ?;
    `, name, s.now(), tabID, accountID, SurfaceTab)
	if err != nil {
		return nil, fmt.Errorf("failed to rename tab %d: %w", tabID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, fmt.Errorf("tab %d: %w", tabID, ErrNotFound)
	}

	return s.GetSurface(ctx, accountID, tabID)
}

func (s *sqlxStore) DeleteTab(ctx context.Context, accountID, tabID int64) error {
	return s.withTx(ctx, "delete_tab", func(tx *sqlx.Tx) error {
		var id int64
		err := tx.GetContext(ctx, &id,
			`SELECT id FROM surfaces WHERE id = ? AND account_id = ? AND kind = ?;`, tabID, accountID, SurfaceTab)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("tab %d: %w", tabID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up tab %d: %w", tabID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE surface_id = ?;`, tabID); err != nil {
			return fmt.Errorf("failed to delete turns of tab %d: %w", tabID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM surfaces WHERE id = ?;`, tabID); err != nil {
			return fmt.Errorf("failed to delete tab %d: %w", tabID, err)
		}

		s.logger.InfoContext(ctx, "Tab deleted", "account_id", accountID, "tab_id", tabID)
		return nil
	})
}

func (s *sqlxStore) GetSurface(ctx context.Context, accountID, surfaceID int64) (*Surface, error) {
	var surface Surface
	err := s.db.GetContext(ctx, &surface,
		`SELECT `+surfaceColumns+` FROM surfaces WHERE id = ? AND account_id = ?;`, surfaceID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("surface %d: %w", surfaceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get surface %d: %w", surfaceID, err)
	}
	return &surface, nil
}

func (s *sqlxStore) GetOrCreateDialog(ctx context.Context, accountID int64) (*Surface, error) {
	var dialog Surface
	err := s.withTx(ctx, "get_or_create_dialog", func(tx *sqlx.Tx) error {
		now := s.now()
		// The partial unique index on surfaces(account_id) WHERE kind = 'dialog'
		// turns a second insert into a no-op.
		if _, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO surfaces (account_id, kind, name, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?);
        `, accountID, SurfaceDialog, string(SurfaceDialog), now, now); err != nil {
			return fmt.Errorf("failed to create dialog for account %d: %w", accountID, err)
		}
		if err := tx.GetContext(ctx, &dialog,
			`SELECT `+surfaceColumns+` FROM surfaces WHERE account_id = ? AND kind = ?;`, accountID, SurfaceDialog); err != nil {
			return fmt.Errorf("failed to load dialog of account %d: %w", accountID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dialog, nil
}
