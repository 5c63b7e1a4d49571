// Package ledger keeps per-account token balances consistent under concurrent
// requests by holding an upper-bound reservation before an expensive call and
// reconciling it exactly once afterwards.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance means the balance could not cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrReservationClosed is returned when a reservation that was already
	// settled or cancelled is finalized again.
	ErrReservationClosed = errors.New("reservation already finalized")
	// ErrUnavailable wraps balance store failures.
	ErrUnavailable = errors.New("ledger store unavailable")
)

// BalanceStore performs the atomic balance mutations the ledger is built on.
type BalanceStore interface {
	DecrementBalanceIf(ctx context.Context, accountID, amount int64) (bool, error)
	IncrementBalance(ctx context.Context, accountID, amount int64) error
	Balance(ctx context.Context, accountID int64) (int64, error)
}

// State is the lifecycle stage of a reservation.
type State int32

const (
	StatePending State = iota
	stateBusy
	StateSettled
	StateCancelled
	// StateAbandoned closes a reservation whose settle or cancel could not
	// reach the store. The hold stays debited.
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case stateBusy:
		return "finalizing"
	case StateSettled:
		return "settled"
	case StateCancelled:
		return "cancelled"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Reservation is a provisional hold against an account's balance. It reaches
// exactly one of StateSettled, StateCancelled or StateAbandoned.
type Reservation struct {
	ID        string
	AccountID int64
	Amount    int64

	state atomic.Int32
}

// State reports the reservation's current stage.
func (r *Reservation) State() State {
	return State(r.state.Load())
}

// begin claims the reservation for one finalization attempt.
func (r *Reservation) begin() error {
	if r.state.CompareAndSwap(int32(StatePending), int32(stateBusy)) {
		return nil
	}
	return fmt.Errorf("%w: reservation %s is %s", ErrReservationClosed, r.ID, r.State())
}

// Settlement describes how a reservation was reconciled.
type Settlement struct {
	// Charged is the net amount taken from the balance for this reservation.
	Charged int64
	// Refunded is the part of the hold returned to the balance.
	Refunded int64
	// PartiallyUnfunded is set when the actual cost exceeded the hold and the
	// balance could not cover the difference. Charged is then the hold.
	PartiallyUnfunded bool
}

// Ledger reserves, settles and cancels token holds.
type Ledger struct {
	store         BalanceStore
	estimator     Estimator
	outputReserve int64
	logger        *slog.Logger
}

// New builds a Ledger. outputReserve is added to every reservation quote to
// cover part of the not yet known response.
func New(store BalanceStore, estimator Estimator, outputReserve int64, logger *slog.Logger) *Ledger {
	if estimator == nil {
		estimator = DefaultEstimator
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		store:         store,
		estimator:     estimator,
		outputReserve: outputReserve,
		logger:        logger.With("component", "ledger"),
	}
}

// Estimate prices text with the configured estimator.
func (l *Ledger) Estimate(text string) int64 {
	return l.estimator.Estimate(text)
}

// Quote is the amount to reserve before sending question to the model.
func (l *Ledger) Quote(question string) int64 {
	return l.Estimate(question) + l.outputReserve
}

// Balance returns the account's current balance.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (int64, error) {
	balance, err := l.store.Balance(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return balance, nil
}

// Reserve holds amount against the balance in one conditional decrement.
func (l *Ledger) Reserve(ctx context.Context, accountID, amount int64) (*Reservation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("reservation amount must not be negative, got %d", amount)
	}

	ok, err := l.store.DecrementBalanceIf(ctx, accountID, amount)
	if err != nil {
		l.logger.ErrorContext(ctx, "Reserve failed", "account_id", accountID, "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !ok {
		l.logger.InfoContext(ctx, "Reservation refused", "account_id", accountID, "amount", amount)
		return nil, ErrInsufficientBalance
	}

	r := &Reservation{ID: uuid.NewString(), AccountID: accountID, Amount: amount}
	l.logger.DebugContext(ctx, "Reserved", "reservation_id", r.ID, "account_id", accountID, "amount", amount)
	return r, nil
}

// Settle reconciles r against the actual cost. A cheaper call is refunded the
// difference; a dearer one is charged the shortfall when the balance allows,
// otherwise it is settled at the hold and flagged PartiallyUnfunded.
// On a store error r stays pending so the caller may retry or Abandon it.
func (l *Ledger) Settle(ctx context.Context, r *Reservation, actual int64) (Settlement, error) {
	if actual < 0 {
		return Settlement{}, fmt.Errorf("actual amount must not be negative, got %d", actual)
	}
	if err := r.begin(); err != nil {
		return Settlement{}, err
	}

	settlement, err := l.reconcile(ctx, r, actual)
	if err != nil {
		r.state.Store(int32(StatePending))
		l.logger.ErrorContext(ctx, "Settle failed", "reservation_id", r.ID, "account_id", r.AccountID, "error", err)
		return Settlement{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r.state.Store(int32(StateSettled))
	if settlement.PartiallyUnfunded {
		l.logger.WarnContext(ctx, "Reservation partially unfunded",
			"reservation_id", r.ID, "account_id", r.AccountID, "reserved", r.Amount, "actual", actual)
	} else {
		l.logger.DebugContext(ctx, "Settled",
			"reservation_id", r.ID, "account_id", r.AccountID, "charged", settlement.Charged, "refunded", settlement.Refunded)
	}
	return settlement, nil
}

func (l *Ledger) reconcile(ctx context.Context, r *Reservation, actual int64) (Settlement, error) {
	switch {
	case actual == r.Amount:
		return Settlement{Charged: actual}, nil
	case actual < r.Amount:
		refund := r.Amount - actual
		if err := l.store.IncrementBalance(ctx, r.AccountID, refund); err != nil {
			return Settlement{}, err
		}
		return Settlement{Charged: actual, Refunded: refund}, nil
	default:
		ok, err := l.store.DecrementBalanceIf(ctx, r.AccountID, actual-r.Amount)
		if err != nil {
			return Settlement{}, err
		}
		if !ok {
			return Settlement{Charged: r.Amount, PartiallyUnfunded: true}, nil
		}
		return Settlement{Charged: actual}, nil
	}
}

// Cancel returns the whole hold to the balance.
// On a store error r stays pending so the caller may retry or Abandon it.
func (l *Ledger) Cancel(ctx context.Context, r *Reservation) error {
	if err := r.begin(); err != nil {
		return err
	}

	if r.Amount > 0 {
		if err := l.store.IncrementBalance(ctx, r.AccountID, r.Amount); err != nil {
			r.state.Store(int32(StatePending))
			l.logger.ErrorContext(ctx, "Cancel failed", "reservation_id", r.ID, "account_id", r.AccountID, "error", err)
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	r.state.Store(int32(StateCancelled))
	l.logger.DebugContext(ctx, "Reservation cancelled", "reservation_id", r.ID, "account_id", r.AccountID, "refunded", r.Amount)
	return nil
}

// Abandon closes a pending reservation after Settle or Cancel failed and
// will not be retried. The hold is not returned; the reservation is logged
// at error level with its amount so it can be reconciled by hand.
func (l *Ledger) Abandon(ctx context.Context, r *Reservation, cause error) error {
	if !r.state.CompareAndSwap(int32(StatePending), int32(StateAbandoned)) {
		return fmt.Errorf("%w: reservation %s is %s", ErrReservationClosed, r.ID, r.State())
	}
	l.logger.ErrorContext(ctx, "Reservation abandoned with hold debited",
		"reservation_id", r.ID, "account_id", r.AccountID, "amount", r.Amount, "cause", cause)
	return nil
}
