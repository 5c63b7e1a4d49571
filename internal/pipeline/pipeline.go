// Package pipeline runs a question through quota admission, token
// reservation, context assembly, the model call, settlement and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/edgard/tokenbot/internal/conversation"
	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/ledger"
	"github.com/edgard/tokenbot/internal/llm"
	"github.com/edgard/tokenbot/internal/quota"
)

// State is a stage of a single question's lifecycle.
type State string

const (
	StateReceived       State = "received"
	StateAdmitted       State = "admitted"
	StateReserved       State = "reserved"
	StateContextualized State = "contextualized"
	StateCalled         State = "called"
	StateSettled        State = "settled"
	StatePersisted      State = "persisted"
	StateRejected       State = "rejected"
	StateAborted        State = "aborted"
)

// Status is the caller-facing outcome.
type Status int

const (
	StatusAnswered Status = iota
	StatusRejected
)

// Reason explains a rejection.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonEmpty               Reason = "empty"
	ReasonTooLong             Reason = "too_long"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonInsufficientBalance Reason = "insufficient_balance"
)

// Request is one question from a front-end. The caller has already checked
// that the account owns the surface.
type Request struct {
	AccountID int64
	SurfaceID int64
	Text      string
	// MaxLength bounds Text in characters. Zero disables the check.
	MaxLength int
}

// Result is the outcome of Submit when no infrastructure fault occurred.
type Result struct {
	Status Status
	State  State
	Reason Reason
	// Limit is the daily quota for ReasonRateLimited and the maximum
	// question length for ReasonTooLong.
	Limit int64

	Response        string
	TokensUsed      int64
	TokensRemaining int64
	// Conversation is the prompt context followed by the assistant reply.
	Conversation []llm.Message
	// Advisories lists non-blocking faults of an answered question.
	Advisories []error
}

// HasAdvisory reports whether any advisory matches target.
func (r Result) HasAdvisory(target error) bool {
	for _, err := range r.Advisories {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// TurnWriter persists conversation turns.
type TurnWriter interface {
	AppendTurn(ctx context.Context, surfaceID int64, role, content string) (int64, error)
}

// DefaultFinalizeTimeout applies when Config.FinalizeTimeout is unset.
const DefaultFinalizeTimeout = 15 * time.Second

// Config tunes the pipeline.
type Config struct {
	Model string
	// LLMTimeout bounds the model call.
	LLMTimeout time.Duration
	// FinalizeTimeout bounds settlement, cancellation and persistence, which
	// run detached from the caller's context.
	FinalizeTimeout time.Duration
}

// Pipeline processes questions. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	gate    *quota.Gate
	ledger  *ledger.Ledger
	builder *conversation.Builder
	turns   TurnWriter
	llm     llm.Client
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New wires a Pipeline.
func New(
	gate *quota.Gate,
	ldg *ledger.Ledger,
	builder *conversation.Builder,
	turns TurnWriter,
	client llm.Client,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	return &Pipeline{
		gate:    gate,
		ledger:  ldg,
		builder: builder,
		turns:   turns,
		llm:     client,
		cfg:     cfg,
		logger:  logger.With("component", "pipeline"),
		now:     time.Now,
	}
}

type run struct {
	p     *Pipeline
	req   Request
	log   *slog.Logger
	state State
}

func (r *run) enter(ctx context.Context, s State) {
	r.log.DebugContext(ctx, "Pipeline transition", "from", r.state, "to", s)
	r.state = s
}

func (r *run) reject(ctx context.Context, reason Reason, limit int64) (Result, error) {
	r.enter(ctx, StateRejected)
	r.log.InfoContext(ctx, "Question rejected", "reason", reason, "limit", limit)
	return Result{Status: StatusRejected, State: StateRejected, Reason: reason, Limit: limit}, nil
}

func (r *run) abort(ctx context.Context, err error) (Result, error) {
	r.enter(ctx, StateAborted)
	return Result{State: StateAborted}, err
}

// Submit answers one question. Rejections come back as a Result with
// StatusRejected and a nil error. A non-nil error means the request was
// aborted: either an *ExternalCallError or an infrastructure fault wrapping
// quota.ErrUnavailable, ledger.ErrUnavailable or a store error.
// Once tokens are reserved the reservation is always settled, cancelled or,
// when the balance store fails, abandoned, even if ctx is cancelled.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	r := &run{
		p:     p,
		req:   req,
		state: StateReceived,
		log:   p.logger.With("account_id", req.AccountID, "surface_id", req.SurfaceID),
	}

	if strings.TrimSpace(req.Text) == "" {
		return r.reject(ctx, ReasonEmpty, 0)
	}
	if req.MaxLength > 0 && utf8.RuneCountInString(req.Text) > req.MaxLength {
		return r.reject(ctx, ReasonTooLong, int64(req.MaxLength))
	}

	decision, err := p.gate.Admit(ctx, req.AccountID, p.now())
	if err != nil {
		return r.abort(ctx, fmt.Errorf("admission failed: %w", err))
	}
	if !decision.Admitted {
		return r.reject(ctx, ReasonRateLimited, decision.Limit)
	}
	r.enter(ctx, StateAdmitted)

	inputCost := p.ledger.Estimate(req.Text)
	reservation, err := p.ledger.Reserve(ctx, req.AccountID, p.ledger.Quote(req.Text))
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return r.reject(ctx, ReasonInsufficientBalance, 0)
	}
	if err != nil {
		return r.abort(ctx, fmt.Errorf("reservation failed: %w", err))
	}
	r.enter(ctx, StateReserved)

	// Everything after a successful reserve must finalize the reservation,
	// so finalization uses a context the caller cannot cancel.
	finalizeCtx, cancelFinalize := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
	defer cancelFinalize()

	messages, err := p.builder.Build(ctx, req.SurfaceID, req.Text)
	if err != nil {
		buildErr := fmt.Errorf("context build failed: %w", err)
		if cancelErr := r.cancelReservation(finalizeCtx, reservation); cancelErr != nil {
			return r.abort(ctx, errors.Join(buildErr, cancelErr))
		}
		return r.abort(ctx, buildErr)
	}
	r.enter(ctx, StateContextualized)

	response, err := p.call(ctx, messages)
	if err != nil {
		fault := llm.FaultOf(err)
		r.log.WarnContext(ctx, "External call failed", "fault", fault, "error", err)
		callErr := &ExternalCallError{Fault: fault, Err: err}
		if cancelErr := r.cancelReservation(finalizeCtx, reservation); cancelErr != nil {
			return r.abort(ctx, errors.Join(callErr, cancelErr))
		}
		return r.abort(ctx, callErr)
	}
	r.enter(ctx, StateCalled)

	result := Result{
		Status:       StatusAnswered,
		Response:     response,
		Conversation: append(messages, llm.Message{Role: llm.RoleAssistant, Content: response}),
	}

	actual := inputCost + p.ledger.Estimate(response)
	settlement, err := p.ledger.Settle(finalizeCtx, reservation, actual)
	switch {
	case err != nil:
		// The hold stays debited; the answer is already produced.
		r.log.ErrorContext(ctx, "Settlement failed, keeping reservation amount",
			"reservation_id", reservation.ID, "reserved", reservation.Amount, "actual", actual, "error", err)
		r.abandon(finalizeCtx, reservation, err)
		result.TokensUsed = reservation.Amount
		result.Advisories = append(result.Advisories, fmt.Errorf("%w: %w", ErrSettlementFailed, err))
	default:
		result.TokensUsed = settlement.Charged
		if settlement.PartiallyUnfunded {
			r.log.WarnContext(ctx, "Answer partially unfunded",
				"reservation_id", reservation.ID, "reserved", reservation.Amount, "actual", actual)
			result.Advisories = append(result.Advisories, ErrPartiallyUnfunded)
		}
		r.enter(ctx, StateSettled)
	}

	if err := r.persist(finalizeCtx, response); err != nil {
		r.log.ErrorContext(ctx, "Persisting turns failed", "error", err)
		result.Advisories = append(result.Advisories, fmt.Errorf("%w: %w", ErrPersistenceDegraded, err))
	} else {
		r.enter(ctx, StatePersisted)
	}

	remaining, err := p.ledger.Balance(finalizeCtx, req.AccountID)
	if err != nil {
		r.log.WarnContext(ctx, "Reading remaining balance failed", "error", err)
		result.Advisories = append(result.Advisories, fmt.Errorf("%w: %w", ErrBalanceUnknown, err))
	}
	result.TokensRemaining = remaining
	result.State = r.state

	r.log.InfoContext(ctx, "Question answered",
		"tokens_used", result.TokensUsed, "tokens_remaining", remaining, "advisories", len(result.Advisories))
	return result, nil
}

func (p *Pipeline) call(ctx context.Context, messages []llm.Message) (string, error) {
	callCtx := ctx
	if p.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.LLMTimeout)
		defer cancel()
	}
	return p.llm.Complete(callCtx, messages, p.cfg.Model)
}

func (r *run) cancelReservation(ctx context.Context, reservation *ledger.Reservation) error {
	if err := r.p.ledger.Cancel(ctx, reservation); err != nil {
		r.log.ErrorContext(ctx, "Cancelling reservation failed",
			"reservation_id", reservation.ID, "amount", reservation.Amount, "error", err)
		r.abandon(ctx, reservation, err)
		return err
	}
	return nil
}

// abandon closes a reservation the store could not finalize. Submit does not
// retry, so the handle would otherwise be dropped while still pending.
func (r *run) abandon(ctx context.Context, reservation *ledger.Reservation, cause error) {
	if err := r.p.ledger.Abandon(ctx, reservation, cause); err != nil {
		r.log.ErrorContext(ctx, "Abandoning reservation failed", "reservation_id", reservation.ID, "error", err)
	}
}

// persist writes the user turn and then the assistant turn, each committed on
// its own. A failed user turn skips the assistant turn to keep the order.
func (r *run) persist(ctx context.Context, response string) error {
	if _, err := r.p.turns.AppendTurn(ctx, r.req.SurfaceID, database.RoleUser, r.req.Text); err != nil {
		return fmt.Errorf("user turn: %w", err)
	}
	if _, err := r.p.turns.AppendTurn(ctx, r.req.SurfaceID, database.RoleAssistant, response); err != nil {
		return fmt.Errorf("assistant turn: %w", err)
	}
	return nil
}
