// Package emit provides event emission and observability for graph execution.
package emit

// Emitter receives and processes observability events from workflow execution.
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down a chat turn
//   - Thread-safe: The TUI runs the orchestrator off the render loop
//   - Resilient: Never panic, never fail the workflow
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// MultiEmitter fans every event out to a list of emitters in order.
//
// The CLI combines a LogEmitter (zap) with a BufferedEmitter (tool activity
// shown next to the pending answer) and, when tracing is enabled, an
// OTelEmitter.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter returns an emitter that forwards to each non-nil emitter.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards the event to every wrapped emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
