// Package messaging abstracts the queues connecting the scheduler controller
// with worker executors. Dispatches travel controller -> worker over a
// per-worker queue; implementations must be safe for concurrent use.
package messaging

import "context"

// Queue represents an abstract message queue for any payload type.
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue.
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message, blocking until one is available or
	// the context is cancelled.
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this message.
	T() *T

	// Ack acknowledges successful processing of this message.
	Ack() error

	// Nack indicates failure; the queue may redeliver or dead-letter the
	// message depending on its retry budget.
	Nack(err error) error
}
