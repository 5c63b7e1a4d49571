package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is wrapped in the *Error returned while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("model circuit open")

// BreakerConfig controls when BreakerClient stops calling the model.
type BreakerConfig struct {
	// MaxFailures consecutive upstream or connectivity failures open the
	// circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe call.
	OpenTimeout time.Duration
}

// BreakerClient fails fast with FaultConnectivity after repeated model
// failures instead of holding reservations for calls that will not succeed.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

var _ Client = (*BreakerClient)(nil)

// NewBreakerClient wraps next.
func NewBreakerClient(next Client, cfg BreakerConfig, log *slog.Logger) *BreakerClient {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "llm_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerClient{next: next, cb: cb}
}

// countsAsSuccess reports whether err leaves the breaker closed. Only
// failures of the model service count against it.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	switch FaultOf(err) {
	case FaultConnectivity, FaultUpstreamError:
		return errors.Is(err, context.Canceled)
	default:
		return true
	}
}

func (b *BreakerClient) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, messages, model)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &Error{Fault: FaultConnectivity, Err: ErrCircuitOpen}
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State returns the breaker state name.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
