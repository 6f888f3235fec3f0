package core

import "github.com/hupe1980/toolmesh/logging"

// toolLogger is embedded in ToolContext. Its Log helpers attach the
// executing tool, the chain's correlation id and the nesting depth to every
// record, so handlers only log what is specific to them. A nil logger is
// replaced by a NoOpLogger.
type toolLogger struct {
	logger logging.Logger
	attrs  []any
}

func newToolLogger(l logging.Logger, ic *InvocationContext, toolName string) *toolLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	return &toolLogger{
		logger: l,
		attrs:  []any{"tool", toolName, "correlation_id", ic.CorrelationID, "depth", ic.Depth},
	}
}

// Logger returns the underlying logger without the call attributes.
func (l *toolLogger) Logger() logging.Logger {
	return l.logger
}

// LogDebug logs a debug message for the current call.
func (l *toolLogger) LogDebug(msg string, args ...any) {
	l.logger.Debug(msg, l.with(args)...)
}

// LogInfo logs an info message for the current call.
func (l *toolLogger) LogInfo(msg string, args ...any) {
	l.logger.Info(msg, l.with(args)...)
}

// LogWarn logs a warning for the current call.
func (l *toolLogger) LogWarn(msg string, args ...any) {
	l.logger.Warn(msg, l.with(args)...)
}

// LogError logs an error for the current call.
func (l *toolLogger) LogError(msg string, args ...any) {
	l.logger.Error(msg, l.with(args)...)
}

func (l *toolLogger) with(args []any) []any {
	out := make([]any, 0, len(l.attrs)+len(args))
	out = append(out, l.attrs...)

	return append(out, args...)
}
