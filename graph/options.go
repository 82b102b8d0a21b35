package graph

import "errors"

// Options configures Engine execution behavior.
//
// Zero values are valid.
type Options struct {
	// MaxSteps limits workflow execution to prevent infinite loops.
	// If 0, no limit is enforced.
	MaxSteps int

	// Metrics receives step latency and run outcome observations.
	// Nil disables metrics.
	Metrics *PrometheusMetrics
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.New(
//	    reducer,
//	    store,
//	    emitter,
//	    graph.WithMaxSteps(12),
//	    graph.WithMetrics(metrics),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts Options
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// The orchestrator loop (assistant -> tools -> assistant) takes two steps per
// tool round plus one for the final answer, so a limit of 2*rounds+1 is
// enough for any bounded conversation turn.
//
// When MaxSteps is exceeded, Run returns an EngineError with code
// "MAX_STEPS_EXCEEDED".
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithMetrics attaches Prometheus metrics to the engine.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}

// WithOptions applies a whole Options struct at once.
func WithOptions(opts Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = opts
		return nil
	}
}
