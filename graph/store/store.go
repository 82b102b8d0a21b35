// Package store persists the step-by-step state of orchestrator runs.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by database-backed stores after Close.
var ErrClosed = errors.New("store is closed")

// Store provides persistence for workflow state.
//
// The orchestrator saves the merged state after every node so a finished
// chat turn can be inspected afterwards (which tools ran, what they
// returned). The chat transcript itself is not stored here.
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// SaveStep persists the state after a node execution step.
	// Each step is identified by runID + step number; saving the same
	// pair twice overwrites the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the most recent state for a given run.
	// Returns ErrNotFound if runID doesn't exist.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// Steps returns every recorded step for a run in step order.
	// Returns ErrNotFound if runID doesn't exist.
	Steps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// StepRecord represents a single execution step in the workflow history.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// NodeID identifies which node produced this state.
	NodeID string

	// State is the workflow state after this step completed.
	State S
}
