package emit

// Event represents an observability event emitted during workflow execution.
//
// The engine emits "node_start", "node_end", "run_complete" and "run_error";
// the orchestrator adds "tool_call" events carrying the tool name.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the sequential step number in the workflow (1-indexed).
	// Zero for run-level events.
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for run-level events.
	NodeID string

	// Msg is a short machine-friendly event name.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "tool": Tool name for tool_call events
	//   - "model": Model identifier for LLM calls
	Meta map[string]interface{}
}
