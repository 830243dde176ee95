package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for fatal run conditions.
var (
	// ErrNoProvider indicates the agent was built without a model provider.
	ErrNoProvider = errors.New("no provider configured")

	// ErrMultipleToolCalls indicates the assistant emitted more than one
	// tool call in a single turn, which this runtime rejects.
	ErrMultipleToolCalls = errors.New("multiple tool calls in one turn")

	// ErrRunInFlight indicates a run was started while another was active.
	ErrRunInFlight = errors.New("a run is already in flight")
)

// RunError wraps a fatal failure of the turn loop with its position.
type RunError struct {
	Turn  int
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at turn %d: %v", e.Turn, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
