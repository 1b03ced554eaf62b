// Package memory provides the in-process messaging vendor used for worker
// dispatch queues.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chunkgrid/chunkgrid/internal/idgen"
	"github.com/chunkgrid/chunkgrid/service/messaging"
)

// Config for the memory queue vendor.
type Config struct {
	// MaxRetries bounds redelivery attempts before a message is dead-lettered.
	MaxRetries int
	// RetryDelay is the pause before a nacked message is requeued.
	RetryDelay time.Duration
	// Buffer is the channel capacity; Publish blocks when full.
	Buffer int
}

// DefaultConfig returns the standard memory queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 50 * time.Millisecond,
		Buffer:     128,
	}
}

// Queue implements an in-memory messaging.Queue.
type Queue[T any] struct {
	config   Config
	messages chan *message[T]

	mu   sync.Mutex
	dead []*message[T]
}

type message[T any] struct {
	id      string
	payload T
	queue   *Queue[T]
	retries int

	mu   sync.Mutex
	done bool
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{
		config:   config,
		messages: make(chan *message[T], config.Buffer),
	}
}

// Publish adds a new item to the queue.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &message[T]{id: idgen.New(), payload: *t, queue: q}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume retrieves a single item, blocking until one arrives.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of buffered messages.
func (q *Queue[T]) Size() int { return len(q.messages) }

// DeadLetters returns the number of dead-lettered messages.
func (q *Queue[T]) DeadLetters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}

// T returns the message payload.
func (m *message[T]) T() *T { return &m.payload }

// Ack acknowledges the message as processed successfully.
func (m *message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.done = true
	return nil
}

// Nack requeues the message after the retry delay, or dead-letters it once
// the retry budget is exhausted.
func (m *message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.done = true
	m.retries++

	if m.retries > m.queue.config.MaxRetries {
		m.queue.mu.Lock()
		m.queue.dead = append(m.queue.dead, m)
		m.queue.mu.Unlock()
		return nil
	}
	retry := &message[T]{id: m.id, payload: m.payload, queue: m.queue, retries: m.retries}
	go func() {
		time.Sleep(m.queue.config.RetryDelay)
		m.queue.messages <- retry
	}()
	return nil
}

// ensure Queue implements messaging.Queue
var _ messaging.Queue[any] = (*Queue[any])(nil)
