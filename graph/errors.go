package graph

import "errors"

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
// allowed step count without completing.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNoRoute indicates a node finished without an explicit route and no
// outgoing edge matched the resulting state.
var ErrNoRoute = errors.New("no valid route from node")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string

	// Cause is the sentinel or underlying error, if any.
	Cause error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause so errors.Is works against sentinels.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
