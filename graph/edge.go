// Package graph provides the state-graph execution engine behind the chat
// orchestrator.
package graph

// Edge represents a connection between two nodes in the workflow graph.
//
// Edges can be:
//   - Unconditional: Always traverse (When = nil).
//   - Conditional: Only traverse if the predicate returns true.
//
// A node that returns an explicit Route in its NodeResult overrides
// edge-based routing.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When is an optional predicate that determines if this edge should be traversed.
	When Predicate[S]
}

// Predicate is a function that evaluates state to determine if an edge should be traversed.
//
// Predicates must be pure functions. The orchestrator uses one to route from
// the model node to the tool node when the last message requested tools.
type Predicate[S any] func(state S) bool

// Reducer merges a node's partial state update into the accumulated state.
//
// Reducers must be deterministic: the same prev and delta always produce the
// same result.
type Reducer[S any] func(prev, delta S) S
