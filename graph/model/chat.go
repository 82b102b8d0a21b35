// Package model defines the provider-neutral chat types the orchestrator
// speaks and the ChatModel interface each LLM adapter implements.
package model

import "context"

// ChatModel is a chat-completion provider.
//
// Implementations convert Message values to their provider's wire format,
// advertise tools when tools is non-empty and translate the reply back into
// ChatOut. They must respect ctx cancellation and honor the ToolChoice of
// opts. Retries are left to the provider SDK.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (ChatOut, error)
}

// ToolChoice tells the provider whether it may call the advertised tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide. It is the default.
	ToolChoiceAuto ToolChoice = ""

	// ToolChoiceNone keeps the tools advertised but requires a text reply.
	// Providers reject histories holding tool calls when no tools are
	// declared, so this is how a conversation with tool turns is closed.
	ToolChoiceNone ToolChoice = "none"
)

// CallOptions are per-call settings.
type CallOptions struct {
	ToolChoice ToolChoice
}

// CallOption configures a single Chat call.
type CallOption func(*CallOptions)

// WithToolChoice sets the tool choice of a call.
func WithToolChoice(choice ToolChoice) CallOption {
	return func(o *CallOptions) { o.ToolChoice = choice }
}

// ApplyCallOptions folds opts into CallOptions.
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Message is one entry of the model-facing conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content contains the message text. May be empty for assistant
	// messages that only carry tool calls.
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string

	// Name is the tool name on RoleTool messages.
	Name string
}

// Standard role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool carries a tool result back to the model.
	RoleTool = "tool"
)

// HasToolCalls reports whether the message requests at least one tool.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolSpec describes a tool that an LLM can call.
//
// Schema follows JSON Schema:
//
//	ToolSpec{
//	    Name:        "wikipedia_search",
//	    Description: "Search Wikipedia",
//	    Schema: map[string]interface{}{
//	        "type": "object",
//	        "properties": map[string]interface{}{
//	            "query": map[string]interface{}{"type": "string"},
//	        },
//	        "required": []string{"query"},
//	    },
//	}
type ToolSpec struct {
	// Name uniquely identifies the tool.
	Name string

	// Description explains what the tool does.
	// The LLM uses this to decide when to call the tool.
	Description string

	// Schema defines the tool's input parameters.
	Schema map[string]interface{}
}

// ChatOut is the output of one chat completion: text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall represents a request from the LLM to invoke a specific tool.
type ToolCall struct {
	// ID is the provider-assigned identifier echoed back in the tool result.
	// Providers that do not assign IDs get a synthesized one.
	ID string

	// Name must match a ToolSpec.Name from the available tools.
	Name string

	// Input holds the decoded arguments.
	Input map[string]interface{}
}

// AssistantMessage converts a completion into the assistant message that is
// appended to the conversation.
func (o ChatOut) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: o.Text, ToolCalls: o.ToolCalls}
}
