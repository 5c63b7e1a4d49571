// Package llm defines the language-model contract used by the request
// pipeline and its fault taxonomy.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of prompt context.
type Message struct {
	Role    string
	Content string
}

// Client completes an ordered conversation. An empty model selects the
// client's default. Failures are returned as *Error.
type Client interface {
	Complete(ctx context.Context, messages []Message, model string) (string, error)
}

// Fault categorizes a failed model call.
type Fault string

const (
	FaultConnectivity  Fault = "connectivity"
	FaultRateLimited   Fault = "rate_limited"
	FaultUpstreamError Fault = "upstream_error"
	FaultUnknown       Fault = "unknown"
)

// Error is a categorized model call failure.
type Error struct {
	Fault Fault
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Fault, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FaultOf returns the fault category of err, or FaultUnknown when err is not
// an *Error.
func FaultOf(err error) Fault {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Fault
	}
	return FaultUnknown
}
