package pipeline

import (
	"errors"
	"fmt"

	"github.com/edgard/tokenbot/internal/llm"
)

// Advisory faults. They are attached to an answered Result and never prevent
// the answer from being returned.
var (
	ErrPartiallyUnfunded   = errors.New("answer cost exceeded the remaining balance")
	ErrPersistenceDegraded = errors.New("conversation turns were not fully persisted")
	ErrSettlementFailed    = errors.New("reservation could not be settled")
	ErrBalanceUnknown      = errors.New("remaining balance could not be read")
)

// ExternalCallError reports a failed model call. The reservation has been
// cancelled by the time it is returned.
type ExternalCallError struct {
	Fault llm.Fault
	Err   error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call failed (%s): %v", e.Fault, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}
