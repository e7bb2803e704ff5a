package interfaces

import "context"

// EventPublisher publishes an event to a topic, keyed so that all events for
// one account land on the same partition.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}
