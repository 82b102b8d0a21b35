package assistant

import (
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/graph"
	"github.com/dshills/multitool-chat/graph/emit"
	"github.com/dshills/multitool-chat/graph/store"
)

// DefaultMaxToolRounds bounds assistant/tools round trips per question.
const DefaultMaxToolRounds = 3

// DefaultSystemPrompt introduces the available tools to the model.
const DefaultSystemPrompt = "You are a helpful research assistant. You can look things up with " +
	"wikipedia_search for general knowledge, arxiv_search for scientific papers and " +
	"tavily_search for current events on the web. Call a tool when it helps, then answer " +
	"the user's question concisely."

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxToolRounds sets how many tool rounds may run before the model is
// asked to answer without calling them. Values below 1 are ignored.
func WithMaxToolRounds(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxToolRounds = n
		}
	}
}

// WithSystemPrompt replaces the system prompt. An empty prompt disables it.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithStore sets the run journal. Defaults to an in-memory store.
func WithStore(st store.Store[TurnState]) Option {
	return func(o *Orchestrator) {
		if st != nil {
			o.store = st
		}
	}
}

// WithEmitter sets the engine event sink.
func WithEmitter(emitter emit.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = emitter }
}

// WithMetrics enables Prometheus metrics for runs, steps and tool calls.
func WithMetrics(metrics *graph.PrometheusMetrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRunIDs overrides run ID generation. Tests use it for stable IDs.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newRunID = next
		}
	}
}
