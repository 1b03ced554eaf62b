package event

import (
	"context"
	"errors"
)

// Listener drains a publisher's queue on a background goroutine and invokes
// the handler for every event.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewListener creates a stopped listener.
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{publisher: publisher, handler: handler, ctx: ctx, cancel: cancel}
}

// Start begins draining events.
func (l *Listener[T]) Start() {
	go func() {
		for {
			event, err := l.publisher.Consume(l.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				continue
			}
			if event != nil {
				l.handler(event)
			}
		}
	}()
}

// Stop terminates the listener goroutine.
func (l *Listener[T]) Stop() { l.cancel() }
