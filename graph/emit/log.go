package emit

import (
	"go.uber.org/zap"
)

// LogEmitter implements Emitter by writing structured log entries through zap.
//
// Every event becomes one entry whose message is Event.Msg and whose fields
// are run_id, step, node_id and one field per Meta key. Events carrying an
// "error" meta key are logged at warn level, everything else at debug level
// so a normal session stays quiet unless --debug is set.
//
// Usage:
//
//	logger := logger.New(logger.Options{Debug: true})
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger yields a no-op logger.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.Named("graph")}
}

// Emit writes the event as a single log entry.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
		zap.String("node_id", event.NodeID),
	)
	for key, value := range event.Meta {
		fields = append(fields, zap.Any(key, value))
	}

	if _, isErr := event.Meta["error"]; isErr {
		l.logger.Warn(event.Msg, fields...)
		return
	}
	l.logger.Debug(event.Msg, fields...)
}
