// Package assistant answers one user question by looping between a chat
// model and the lookup tools until the model produces a plain reply.
//
// The loop is a two-node graph.Engine:
//
//	assistant --(last message has tool calls)--> tools --> assistant
//	assistant --(otherwise)--> stop
//
// After MaxToolRounds tool rounds the model is called with tool choice
// "none", which forces a final answer. The tools stay declared because the
// history already holds tool calls.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/graph"
	"github.com/dshills/multitool-chat/graph/emit"
	"github.com/dshills/multitool-chat/graph/model"
	"github.com/dshills/multitool-chat/graph/store"
	"github.com/dshills/multitool-chat/graph/tool"
)

const (
	assistantNode = "assistant"
	toolsNode     = "tools"
)

// ErrNoAnswer is returned when a run ends without an assistant message.
var ErrNoAnswer = errors.New("assistant produced no answer")

// Result is the outcome of one Answer call.
type Result struct {
	RunID string

	// Answer is the content of the final assistant message.
	Answer string

	// ToolCalls lists the distinct tool names invoked, in first-use order.
	ToolCalls []string

	// Messages holds everything the run appended after the input.
	Messages []model.Message
}

// Orchestrator runs the assistant/tools graph for one question at a time.
type Orchestrator struct {
	model model.ChatModel
	tools map[string]tool.Tool
	specs []model.ToolSpec

	maxToolRounds int
	systemPrompt  string
	store         store.Store[TurnState]
	emitter       emit.Emitter
	metrics       *graph.PrometheusMetrics
	logger        *zap.Logger
	newRunID      func() string

	engine *graph.Engine[TurnState]
}

// New builds an Orchestrator. Tool names must be unique.
func New(m model.ChatModel, tools []tool.Tool, opts ...Option) (*Orchestrator, error) {
	if m == nil {
		return nil, errors.New("assistant: chat model is required")
	}

	o := &Orchestrator{
		model:         m,
		tools:         make(map[string]tool.Tool, len(tools)),
		specs:         tool.Specs(tools),
		maxToolRounds: DefaultMaxToolRounds,
		systemPrompt:  DefaultSystemPrompt,
		store:         store.NewMemStore[TurnState](),
		emitter:       emit.NewNullEmitter(),
		logger:        zap.NewNop(),
		newRunID:      uuid.NewString,
	}
	for _, t := range tools {
		if _, dup := o.tools[t.Name()]; dup {
			return nil, fmt.Errorf("assistant: duplicate tool %q", t.Name())
		}
		o.tools[t.Name()] = t
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.emitter == nil {
		o.emitter = emit.NewNullEmitter()
	}

	engine, err := o.buildEngine()
	if err != nil {
		return nil, err
	}
	o.engine = engine
	return o, nil
}

func (o *Orchestrator) buildEngine() (*graph.Engine[TurnState], error) {
	engine := graph.New(Reduce, o.store, o.emitter,
		// one assistant and one tools step per round plus the final answer
		graph.WithMaxSteps(2*o.maxToolRounds+2),
		graph.WithMetrics(o.metrics),
	)

	if err := engine.Add(assistantNode, graph.NodeFunc[TurnState](o.runAssistant)); err != nil {
		return nil, err
	}
	if err := engine.Add(toolsNode, graph.NodeFunc[TurnState](o.runTools)); err != nil {
		return nil, err
	}
	if err := engine.StartAt(assistantNode); err != nil {
		return nil, err
	}
	if err := engine.Connect(assistantNode, toolsNode, o.wantsTools); err != nil {
		return nil, err
	}
	if err := engine.Connect(toolsNode, assistantNode, nil); err != nil {
		return nil, err
	}
	return engine, nil
}

// Answer runs the graph on messages (prior conversation plus the new user
// question) and returns the final assistant reply.
func (o *Orchestrator) Answer(ctx context.Context, messages []model.Message) (Result, error) {
	runID := o.newRunID()
	ctx = withRunID(ctx, runID)

	initial := TurnState{Messages: o.prompt(messages)}

	o.logger.Debug("answering",
		zap.String("run_id", runID),
		zap.Int("messages", len(initial.Messages)),
	)

	final, err := o.engine.Run(ctx, runID, initial)
	if err != nil {
		return Result{RunID: runID}, fmt.Errorf("run %s: %w", runID, err)
	}

	last, ok := final.last()
	if !ok || last.Role != model.RoleAssistant {
		return Result{RunID: runID}, ErrNoAnswer
	}

	added := final.Messages[len(initial.Messages):]
	res := Result{
		RunID:     runID,
		Answer:    last.Content,
		ToolCalls: toolNames(added),
		Messages:  append([]model.Message(nil), added...),
	}

	o.logger.Debug("answered",
		zap.String("run_id", runID),
		zap.Strings("tools", res.ToolCalls),
		zap.Int("tool_rounds", final.ToolRounds),
	)
	return res, nil
}

// Steps returns the journal of a previous run.
func (o *Orchestrator) Steps(ctx context.Context, runID string) ([]store.StepRecord[TurnState], error) {
	return o.store.Steps(ctx, runID)
}

// prompt copies messages, prepending the system prompt unless the caller
// already supplied one.
func (o *Orchestrator) prompt(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages)+1)
	if o.systemPrompt != "" && (len(messages) == 0 || messages[0].Role != model.RoleSystem) {
		out = append(out, model.Message{Role: model.RoleSystem, Content: o.systemPrompt})
	}
	return append(out, messages...)
}

func (o *Orchestrator) runAssistant(ctx context.Context, state TurnState) graph.NodeResult[TurnState] {
	var opts []model.CallOption
	final := state.ToolRounds >= o.maxToolRounds
	if final {
		opts = append(opts, model.WithToolChoice(model.ToolChoiceNone))
	}

	out, err := o.model.Chat(ctx, state.Messages, o.specs, opts...)
	if err != nil {
		return graph.NodeResult[TurnState]{Err: err}
	}

	if final {
		// tool rounds exhausted; stray calls are dropped
		out.ToolCalls = nil
	}
	for i := range out.ToolCalls {
		if out.ToolCalls[i].ID == "" {
			out.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", state.ToolRounds, i)
		}
	}

	result := graph.NodeResult[TurnState]{
		Delta: TurnState{Messages: []model.Message{out.AssistantMessage()}},
	}
	if len(out.ToolCalls) == 0 {
		result.Route = graph.Stop()
	}
	return result
}

func (o *Orchestrator) wantsTools(state TurnState) bool {
	last, ok := state.last()
	return ok && last.Role == model.RoleAssistant && last.HasToolCalls()
}

// runTools executes every call of the last assistant message. Tool failures
// become "error: ..." results for the model to read; only cancellation
// aborts the run.
func (o *Orchestrator) runTools(ctx context.Context, state TurnState) graph.NodeResult[TurnState] {
	last, _ := state.last()
	runID := runIDFrom(ctx)

	results := make([]model.Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		started := time.Now()
		content, err := o.invoke(ctx, call)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return graph.NodeResult[TurnState]{Err: ctxErr}
		}

		status := "success"
		meta := map[string]interface{}{
			"tool":        call.Name,
			"duration_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			status = "error"
			content = "error: " + err.Error()
			meta["error"] = err.Error()
		}
		meta["status"] = status

		o.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   state.ToolRounds + 1,
			NodeID: toolsNode,
			Msg:    "tool_call",
			Meta:   meta,
		})
		o.metrics.IncrementToolCalls(call.Name, status)

		results = append(results, model.Message{
			Role:       model.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}

	return graph.NodeResult[TurnState]{
		Delta: TurnState{Messages: results, ToolRounds: state.ToolRounds + 1},
	}
}

func (o *Orchestrator) invoke(ctx context.Context, call model.ToolCall) (string, error) {
	t, ok := o.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	out, err := t.Call(ctx, call.Input)
	if err != nil {
		return "", err
	}
	return tool.ResultText(out), nil
}

func toolNames(messages []model.Message) []string {
	seen := make(map[string]bool)
	var names []string
	for _, msg := range messages {
		for _, call := range msg.ToolCalls {
			if !seen[call.Name] {
				seen[call.Name] = true
				names = append(names, call.Name)
			}
		}
	}
	return names
}

type runIDKey struct{}

func withRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
