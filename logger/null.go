package logger

// NullLogger discards everything. Useful in tests.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (NullLogger) Debug(msg string, keyvals ...any) {}
func (NullLogger) Info(msg string, keyvals ...any)  {}
func (NullLogger) Warn(msg string, keyvals ...any)  {}
func (NullLogger) Error(msg string, keyvals ...any) {}
