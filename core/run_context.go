package core

import (
	"context"
	"maps"

	"github.com/hupe1980/deskmesh/logging"
)

// loggerAdapter wraps a logging.Logger and exposes convenience methods
// (LogDebug/LogInfo/LogWarn/LogError). It guarantees a non-nil logger by
// substituting a NoOpLogger when constructed with nil.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs an error message.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }

// RunContext carries the per-request execution scope handed to an Agent's
// Process method. It aggregates:
//   - The ambient cancellation Context
//   - Correlation identifiers (RequestID)
//   - The immutable inbound Message and its sender
//   - A copy-on-extend variable map used to pass augmentation data
//     (research results, source lists) into re-invocations
//
// Vars is never mutated in place after construction; WithVars produces an
// extended clone so concurrent readers of the parent context stay safe.
type RunContext struct {
	Context   context.Context
	RequestID string
	Message   Message
	Vars      map[string]any

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty variable map.
func NewRunContext(ctx context.Context, requestID string, msg Message, logger logging.Logger) *RunContext {
	return &RunContext{
		Context:       ctx,
		RequestID:     requestID,
		Message:       msg,
		Vars:          map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done mirrors context.Context's Done.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// UserID returns the sender of the inbound message.
func (rc *RunContext) UserID() string { return rc.Message.SenderID }

// Var returns the named variable. The boolean reports whether it was set.
func (rc *RunContext) Var(key string) (any, bool) {
	v, ok := rc.Vars[key]
	return v, ok
}

// StringVar returns the named variable as a string, or "" when absent or of
// a different type.
func (rc *RunContext) StringVar(key string) string {
	if v, ok := rc.Vars[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithVars returns a clone of the context extended with the given variables.
// The receiver is left untouched.
func (rc *RunContext) WithVars(vars map[string]any) *RunContext {
	clone := &RunContext{
		Context:       rc.Context,
		RequestID:     rc.RequestID,
		Message:       rc.Message,
		Vars:          make(map[string]any, len(rc.Vars)+len(vars)),
		loggerAdapter: rc.loggerAdapter,
	}
	maps.Copy(clone.Vars, rc.Vars)
	maps.Copy(clone.Vars, vars)
	return clone
}
