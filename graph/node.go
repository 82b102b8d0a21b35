package graph

import "context"

// Node is one step of a graph. It reads the current state and reports a
// partial update, where to go next, or an error.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is what a Node returns.
type NodeResult[S any] struct {
	// Delta is merged into the state with the engine's reducer.
	Delta S

	// Route overrides edge routing. The zero value defers to the edges.
	Route Next

	// Err stops the run. The engine wraps it in a *NodeError.
	Err error
}

// Next names the node to run after the current one, or ends the run.
type Next struct {
	To       string
	Terminal bool
}

// Stop ends the run after the current node.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto jumps to nodeID regardless of edges.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to Node.
//
//	tools := NodeFunc[TurnState](func(ctx context.Context, s TurnState) NodeResult[TurnState] {
//	    return NodeResult[TurnState]{Delta: TurnState{ToolRounds: s.ToolRounds + 1}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run calls f.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError reports which node failed and why. Unwrap returns Cause, so
// errors.Is sees through to the model or tool error.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}
