package logger

// Logger is the minimal structured logging contract used by the engine.
// Implementations accept alternating key/value pairs; odd trailing values are
// dropped. Keep it small so tests can mock it trivially.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
