package shadow

//
// Logging (spec.md §7: "leveled sink wired to the external logger")
//

// Logger is the leveled logging sink the engine writes to. The core never
// imports a concrete logging library; it only depends on this interface,
// so callers can plug in [github.com/apex/log], a
// [go.uber.org/zap]-backed adapter, or anything else that implements it.
//
// spec.md §7 names six levels (error, critical, warning, message, info,
// debug); this interface has four: Error, Warn, Info (the "message"
// level) and Debug. There is no separate critical method.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational ("message" level) message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)

	// Errorf formats and emits an error message. Error-kind failures
	// (spec.md §7) are logged at this level.
	Errorf(format string, v ...any)

	// Error emits an error message.
	Error(message string)
}

// discardLogger is a [Logger] that drops every message. Used as the
// default when a caller does not provide one.
type discardLogger struct{}

func (discardLogger) Debugf(format string, v ...any) {}
func (discardLogger) Debug(message string)           {}
func (discardLogger) Infof(format string, v ...any)  {}
func (discardLogger) Info(message string)            {}
func (discardLogger) Warnf(format string, v ...any)  {}
func (discardLogger) Warn(message string)            {}
func (discardLogger) Errorf(format string, v ...any) {}
func (discardLogger) Error(message string)           {}

// DiscardLogger is a [Logger] that drops every message.
var DiscardLogger Logger = discardLogger{}
