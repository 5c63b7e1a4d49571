package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
)

// DefaultTabName is given to tabs created without an explicit name.
const DefaultTabName = "New Tab"

// MaxTabNameLength bounds tab names, counted in characters.
const MaxTabNameLength = 50

var (
	// ErrNotFound is returned when an account, surface or tab does not exist
	// or is not owned by the requesting account.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for empty or over-long tab names.
	ErrInvalidName = errors.New("invalid tab name")
	// ErrInvalidAmount is returned for negative balance adjustments.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Store defines the persistence operations used by the request pipeline, the
// front-ends and the maintenance tasks.
type Store interface {
	Ping(ctx context.Context) error
	RunSQLMaintenance(ctx context.Context) error

	CreateAccount(ctx context.Context, email string, startingGrant int64) (*Account, error)
	GetAccount(ctx context.Context, accountID int64) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// Balance returns the current balance of an account.
	Balance(ctx context.Context, accountID int64) (int64, error)
	// DecrementBalanceIf subtracts amount only if the balance covers it and
	// reports whether it did. The check and the write are one statement.
	DecrementBalanceIf(ctx context.Context, accountID, amount int64) (bool, error)
	// IncrementBalance adds amount to the balance.
	IncrementBalance(ctx context.Context, accountID, amount int64) error

	// ListTabs returns the account's tabs oldest first, creating a default tab
	// when the account has none.
	ListTabs(ctx context.Context, accountID int64) ([]Surface, error)
	CreateTab(ctx context.Context, accountID int64, name string) (*Surface, error)
	RenameTab(ctx context.Context, accountID, tabID int64, name string) (*Surface, error)
	// DeleteTab removes the tab and all of its turns.
	DeleteTab(ctx context.Context, accountID, tabID int64) error
	// GetSurface returns a surface owned by accountID.
	GetSurface(ctx context.Context, accountID, surfaceID int64) (*Surface, error)
	// GetOrCreateDialog returns the account's single bot dialog.
	GetOrCreateDialog(ctx context.Context, accountID int64) (*Surface, error)

	AppendTurn(ctx context.Context, surfaceID int64, role, content string) (int64, error)
	RecentTurns(ctx context.Context, surfaceID int64, n int) ([]Turn, error)
	ListTurns(ctx context.Context, surfaceID int64) ([]Turn, error)
	DeleteTurns(ctx context.Context, surfaceID int64) (int64, error)

	// IncrementWithExpiry atomically increments the counter at key, starting a
	// fresh counter that expires after ttl when none exists or the old one expired.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// DeleteExpiredCounters removes counters whose expiry has passed.
	DeleteExpiredCounters(ctx context.Context) (int64, error)
}

// sqlxStore implements Store on top of SQLite via sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by an open, migrated sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("failed to begin transaction for %s: %w", op, err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("failed to commit transaction for %s: %w", op, err)
	}
	return nil
}

// --- accounts and balances ---

func (s *sqlxStore) CreateAccount(ctx context.Context, email string, startingGrant int64) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("account email cannot be empty")
	}
	if startingGrant < 0 {
		return nil, fmt.Errorf("%w: starting grant %d", ErrInvalidAmount, startingGrant)
	}

	now := s.now()
	account := &Account{Email: email, Balance: startingGrant, CreatedAt: now, UpdatedAt: now}

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO accounts (email, balance, created_at, updated_at)
        VALUES (:email, :balance, :created_at, :updated_at);
    `, account)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating account", "email", email, "error", err)
		return nil, fmt.Errorf("failed to create account %q: %w", email, err)
	}
	if account.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read new account id: %w", err)
	}

	s.logger.InfoContext(ctx, "Account created", "account_id", account.ID, "starting_grant", startingGrant)
	return account, nil
}

func (s *sqlxStore) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	var account Account
	err := s.db.GetContext(ctx, &account,
		`SELECT id, email, balance, created_at, updated_at FROM accounts WHERE id = ?;`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", accountID, err)
	}
	return &account, nil
}

func (s *sqlxStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	err := s.db.GetContext(ctx, &account,
		`SELECT id, email, balance, created_at, updated_at FROM accounts WHERE email = ?;`, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %q: %w", email, err)
	}
	return &account, nil
}

func (s *sqlxStore) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `SELECT balance FROM accounts WHERE id = ?;`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance of account %d: %w", accountID, err)
	}
	return balance, nil
}

func (s *sqlxStore) DecrementBalanceIf(ctx context.Context, accountID, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("%w: decrement by %d", ErrInvalidAmount, amount)
	}

	result, err := s.db.ExecContext(ctx, `
        UPDATE accounts
        SET balance = balance - ?, updated_at = ?
        WHERE id = ? AND balance >= ?;
    `, amount, s.now(), accountID, amount)
	if err != nil {
		s.logger.ErrorContext(ctx, "Conditional balance decrement failed", "account_id", accountID, "amount", amount, "error", err)
		return false, fmt.Errorf("failed to decrement balance of account %d: %w", accountID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	// No row matched: either the balance is short or the account is missing.
	if _, err := s.Balance(ctx, accountID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *sqlxStore) IncrementBalance(ctx context.Context, accountID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: increment by %d", ErrInvalidAmount, amount)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?;`,
		amount, s.now(), accountID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Balance increment failed", "account_id", accountID, "amount", amount, "error", err)
		return fmt.Errorf("failed to increment balance of account %d: %w", accountID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return nil
}

// RunSQLMaintenance reclaims free pages with VACUUM.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context done before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}

func validateTabName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxTabNameLength {
		return "", fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, MaxTabNameLength)
	}
	return name, nil
}
