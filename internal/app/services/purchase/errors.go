package purchase

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every terminal failure of a purchase attempt wraps one of
// these sentinels (or, for unclassifiable signer errors, the raw cause) inside
// an *Error carrying the agent ID and phase.
var (
	ErrNoAccount         = errors.New("no wallet session")
	ErrWrongNetwork      = errors.New("connected to wrong network")
	ErrUnavailable       = errors.New("agent not available for purchase")
	ErrMisconfigured     = errors.New("agent wallet address not configured")
	ErrInsufficientFunds = errors.New("insufficient balance for purchase")
	ErrUserRejected      = errors.New("transaction cancelled by user")
	ErrNetwork           = errors.New("network error during purchase")
	ErrTransactionFailed = errors.New("transaction failed on chain")
	ErrAlreadyInProgress = errors.New("purchase already in progress for agent")
)

// Error is a purchase failure with enough context to render a specific user
// message: which agent, which phase, and the underlying cause.
type Error struct {
	AgentID string
	Phase   Phase
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("purchase %s: %s: %v", e.AgentID, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// failf builds an *Error wrapping the taxonomy sentinel with a cause.
func failf(agentID string, phase Phase, sentinel error, format string, args ...interface{}) *Error {
	cause := fmt.Sprintf(format, args...)
	if cause == "" {
		return &Error{AgentID: agentID, Phase: phase, Err: sentinel}
	}
	return &Error{AgentID: agentID, Phase: phase, Err: fmt.Errorf("%w: %s", sentinel, cause)}
}
