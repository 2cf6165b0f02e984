package contentpipe

import "context"

// NoopEventSink discards all events. Useful for tests and embedders that do
// not care about lifecycle notifications.
type NoopEventSink struct{}

// NewNoopEventSink creates an event sink that does nothing.
func NewNoopEventSink() *NoopEventSink {
	return &NoopEventSink{}
}

// Publish implements EventSink.
func (NoopEventSink) Publish(ctx context.Context, event Event) error {
	return nil
}
