package assistant

import "github.com/dshills/multitool-chat/graph/model"

// TurnState is the graph state of one orchestrator run.
type TurnState struct {
	// Messages is the model-facing conversation, including tool traffic
	// produced during this run.
	Messages []model.Message `json:"messages"`

	// ToolRounds counts completed tools-node executions.
	ToolRounds int `json:"tool_rounds"`
}

// Reduce merges a node delta into the running state. Messages are appended
// and ToolRounds keeps the larger value.
func Reduce(prev, delta TurnState) TurnState {
	merged := TurnState{
		Messages:   make([]model.Message, 0, len(prev.Messages)+len(delta.Messages)),
		ToolRounds: prev.ToolRounds,
	}
	merged.Messages = append(merged.Messages, prev.Messages...)
	merged.Messages = append(merged.Messages, delta.Messages...)
	if delta.ToolRounds > merged.ToolRounds {
		merged.ToolRounds = delta.ToolRounds
	}
	return merged
}

// last returns the final message, if any.
func (s TurnState) last() (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
