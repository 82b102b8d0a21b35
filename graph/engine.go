package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/multitool-chat/graph/emit"
	"github.com/dshills/multitool-chat/graph/store"
)

// Engine orchestrates stateful workflow execution.
//
// The Engine is the runtime that:
//   - Manages workflow graph topology (nodes and edges)
//   - Executes nodes in sequence, following explicit routes or edges
//   - Merges state updates via the reducer
//   - Persists state at each step via the store
//   - Emits observability events via the emitter
//   - Enforces MaxSteps
//
// Type parameter S is the state type shared across the workflow.
//
// Example:
//
//	engine := New(reducer, store.NewMemStore[TurnState](), emit.NewNullEmitter(), WithMaxSteps(9))
//	engine.Add("assistant", assistantNode)
//	engine.Add("tools", toolsNode)
//	engine.StartAt("assistant")
//	engine.Connect("assistant", "tools", hasToolCalls)
//	engine.Connect("tools", "assistant", nil)
//
//	final, err := engine.Run(ctx, runID, TurnState{Messages: history})
type Engine[S any] struct {
	mu sync.RWMutex

	// reducer merges partial state updates deterministically
	reducer Reducer[S]

	// nodes maps node IDs to Node implementations
	nodes map[string]Node[S]

	// edges defines conditional transitions between nodes, in priority order
	edges []Edge[S]

	// startNode is the entry point for workflow execution
	startNode string

	// store persists workflow state after every step
	store store.Store[S]

	// emitter receives observability events
	emitter emit.Emitter

	opts Options

	// configErr holds the first error returned by an Option
	configErr error
}

// New creates a new Engine with the given configuration.
//
// Parameters:
//   - reducer: Function to merge partial state updates (required for Run)
//   - st: Persistence backend for step state (required for Run)
//   - emitter: Observability event receiver (optional, can be nil)
//   - options: Functional options (WithMaxSteps, WithMetrics)
//
// Option errors are reported by Run.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, options ...Option) *Engine[S] {
	cfg := &engineConfig{}
	var configErr error
	for _, opt := range options {
		if err := opt(cfg); err != nil && configErr == nil {
			configErr = err
		}
	}

	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine[S]{
		reducer:   reducer,
		nodes:     make(map[string]Node[S]),
		edges:     make([]Edge[S], 0),
		store:     st,
		emitter:   emitter,
		opts:      cfg.opts,
		configErr: configErr,
	}
}

// Add registers a node in the workflow graph.
//
// Returns error if nodeID is empty, node is nil, or the ID is already taken.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    "DUPLICATE_NODE",
		}
	}

	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry point for workflow execution.
//
// The node must have been registered via Add.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    "NODE_NOT_FOUND",
		}
	}

	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes.
//
// Edges are evaluated in the order they were added; the first match wins.
// A nil predicate makes the edge unconditional. Node existence is checked
// lazily at run time so edges may be declared before nodes.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{
		From: from,
		To:   to,
		When: predicate,
	})
	return nil
}

// Run executes the workflow from the start node to completion or error.
//
// Each step runs one node, merges its delta, persists the merged state, emits
// a "node_end" event and then follows the node's explicit Route or, failing
// that, the first matching outgoing edge. A node with no route and no
// matching edge ends the run with ErrNoRoute.
//
// The returned state is the zero value whenever err is non-nil.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	final, err := e.run(ctx, runID, initial)
	status := "success"
	if err != nil {
		status = "error"
		e.emitter.Emit(emit.Event{
			RunID: runID,
			Msg:   "run_error",
			Meta:  map[string]interface{}{"error": err.Error()},
		})
	} else {
		e.emitter.Emit(emit.Event{RunID: runID, Msg: "run_complete"})
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementRuns(status)
	}
	return final, err
}

func (e *Engine[S]) validate() error {
	if e.configErr != nil {
		return &EngineError{
			Message: "invalid engine option: " + e.configErr.Error(),
			Code:    "INVALID_OPTION",
			Cause:   e.configErr,
		}
	}
	if e.reducer == nil {
		return &EngineError{
			Message: "reducer is required",
			Code:    "MISSING_REDUCER",
		}
	}
	if e.store == nil {
		return &EngineError{
			Message: "store is required",
			Code:    "MISSING_STORE",
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startNode == "" {
		return &EngineError{
			Message: "start node not set (call StartAt before Run)",
			Code:    "NO_START_NODE",
		}
	}
	return nil
}

func (e *Engine[S]) run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	e.mu.RLock()
	currentNode := e.startNode
	e.mu.RUnlock()

	currentState := initial
	step := 0

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		e.mu.RUnlock()

		if !exists {
			return zero, &EngineError{
				Message: "node not found during execution: " + currentNode,
				Code:    "NODE_NOT_FOUND",
			}
		}

		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: "node_start"})

		started := time.Now()
		result := nodeImpl.Run(ctx, currentState)
		latency := time.Since(started)

		if result.Err != nil {
			e.recordLatency(currentNode, latency, "error")
			return zero, wrapNodeError(currentNode, result.Err)
		}
		e.recordLatency(currentNode, latency, "success")

		currentState = e.reducer(currentState, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, currentState); err != nil {
			return zero, &EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    "STORE_ERROR",
				Cause:   err,
			}
		}

		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   step,
			NodeID: currentNode,
			Msg:    "node_end",
			Meta: map[string]interface{}{
				"duration_ms": latency.Milliseconds(),
			},
		})

		if result.Route.Terminal {
			return currentState, nil
		}

		if result.Route.To != "" {
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return zero, &EngineError{
				Message: "no valid route from node: " + currentNode,
				Code:    "NO_ROUTE",
				Cause:   ErrNoRoute,
			}
		}
		currentNode = nextNode
	}
}

// evaluateEdges finds the first matching edge from the given node.
// Returns an empty string if no edge matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) recordLatency(nodeID string, latency time.Duration, status string) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordStepLatency(nodeID, latency, status)
	}
}

// wrapNodeError attaches the node ID to an error unless the node already
// returned a *NodeError that names itself.
func wrapNodeError(nodeID string, err error) error {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) && nodeErr.NodeID != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &NodeError{
		Message: err.Error(),
		NodeID:  nodeID,
		Cause:   err,
	}
}
