package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// It is the default run journal: data lives as long as the chat session,
// matching the lifetime of the transcript. MemStore is safe for concurrent use.
type MemStore[S any] struct {
	mu    sync.RWMutex
	steps map[string]map[int]StepRecord[S] // runID -> step -> record
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps: make(map[string]map[int]StepRecord[S]),
	}
}

// SaveStep persists a workflow execution step.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.steps[runID]
	if !ok {
		run = make(map[int]StepRecord[S])
		m.steps[runID] = run
	}
	run[step] = StepRecord[S]{Step: step, NodeID: nodeID, State: state}
	return nil
}

// LoadLatest retrieves the step with the highest step number for a run.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.steps[runID]
	if !ok || len(run) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := -1
	for n := range run {
		if n > latest {
			latest = n
		}
	}
	return run[latest].State, latest, nil
}

// Steps returns the run's records ordered by step number.
func (m *MemStore[S]) Steps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.steps[runID]
	if !ok || len(run) == 0 {
		return nil, ErrNotFound
	}

	records := make([]StepRecord[S], 0, len(run))
	for _, r := range run {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}
