package recorder

// NoopRecorder is used when no database path is configured.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that discards every event.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

// RecordTransition discards the event.
func (n *NoopRecorder) RecordTransition(_ Event) error { return nil }

// Recent always returns no events.
func (n *NoopRecorder) Recent(_ int) ([]Event, error) { return nil, nil }

// Close does nothing.
func (n *NoopRecorder) Close() error { return nil }
