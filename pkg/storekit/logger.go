package storekit

// Field is one key/value attached to a log line. Keys used across the bridge are "event",
// "product_id", "transaction_id" and "error".
type Field struct {
	Key   string
	Value interface{}
}

// Logger receives the bridge's diagnostics. Delivery, purchase and finalization failures
// that never reach the foreign caller are only visible here. Adapters live under
// storekit/logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NoopLogger discards everything. Managers and registries fall back to it when
// Config.Logger is nil.
type NoopLogger struct{}

func (n *NoopLogger) Debug(msg string, fields ...Field) {}
func (n *NoopLogger) Info(msg string, fields ...Field)  {}
func (n *NoopLogger) Warn(msg string, fields ...Field)  {}
func (n *NoopLogger) Error(msg string, fields ...Field) {}

func errField(err error) Field {
	return Field{Key: "error", Value: err.Error()}
}

func eventField(event EventKind) Field {
	return Field{Key: "event", Value: string(event)}
}
