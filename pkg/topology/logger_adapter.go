package topology

import "github.com/rs/zerolog"

// LoggerAdapter bridges a zerolog.Logger into this package's Logger
// interface. internal/infrastructure.Logger is a zerolog.Logger, and every
// cmd/ entry point wires it in through NewLoggerAdapter, so the adapter
// targets the real zerolog.Event API directly rather than duck-typing an
// interface *zerolog.Event's methods don't structurally satisfy.
type LoggerAdapter struct {
	logger zerolog.Logger
}

func NewLoggerAdapter(logger zerolog.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: logger}
}

func (l *LoggerAdapter) Info() LogEvent  { return &zerologEvent{l.logger.Info()} }
func (l *LoggerAdapter) Warn() LogEvent  { return &zerologEvent{l.logger.Warn()} }
func (l *LoggerAdapter) Error() LogEvent { return &zerologEvent{l.logger.Error()} }
func (l *LoggerAdapter) Debug() LogEvent { return &zerologEvent{l.logger.Debug()} }

// zerologEvent adapts *zerolog.Event to LogEvent. zerolog.Event's builder
// methods are no-ops on a disabled level, so this never needs its own
// nil-event guard.
type zerologEvent struct {
	event *zerolog.Event
}

func (e *zerologEvent) Msg(msg string) { e.event.Msg(msg) }

func (e *zerologEvent) Err(err error) LogEvent {
	e.event.Err(err)

	return e
}

func (e *zerologEvent) Str(key, value string) LogEvent {
	e.event.Str(key, value)

	return e
}
