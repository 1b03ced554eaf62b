package event

import (
	"reflect"
	"sync"

	"github.com/chunkgrid/chunkgrid/service/messaging/memory"
)

// Service hands out one publisher/listener pair per payload type, each backed
// by its own in-memory queue.
type Service struct {
	mux             sync.RWMutex
	typedPublishers map[reflect.Type]any
	typedListeners  map[reflect.Type]any
	queueConfig     memory.Config
}

// Option customises the event service.
type Option func(*Service)

// WithQueueConfig overrides the per-type queue configuration.
func WithQueueConfig(config memory.Config) Option {
	return func(s *Service) { s.queueConfig = config }
}

// New creates an event service.
func New(opts ...Option) *Service {
	ret := &Service{
		typedPublishers: make(map[reflect.Type]any),
		typedListeners:  make(map[reflect.Type]any),
		queueConfig:     memory.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func keyOf[T any]() reflect.Type {
	var t T
	rType := reflect.TypeOf(t)
	if rType != nil && rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// PublisherOf returns the publisher for the payload type, creating it on
// first use.
func PublisherOf[T any](s *Service) *Publisher[T] {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T])
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.typedPublishers[key]; ok {
		return ret.(*Publisher[T])
	}
	publisher := NewPublisher[T](memory.NewQueue[Event[T]](s.queueConfig))
	s.typedPublishers[key] = publisher
	return publisher
}

// SetListenerOf installs (replacing any previous) a handler draining events
// of the payload type.
func SetListenerOf[T any](s *Service, handler func(*Event[T])) {
	key := keyOf[T]()
	publisher := PublisherOf[T](s)
	s.mux.Lock()
	defer s.mux.Unlock()
	if prev, ok := s.typedListeners[key]; ok {
		prev.(*Listener[T]).Stop()
	}
	listener := NewListener[T](publisher, handler)
	s.typedListeners[key] = listener
	listener.Start()
}
