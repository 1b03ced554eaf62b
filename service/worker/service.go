// Package worker implements the worker executor pool. Each worker models an
// independent execution context: it consumes dispatches from its own queue,
// runs the callable, and reports completion, failure and heartbeats back to
// the controller through the Sink. Workers never touch graph state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chunkgrid/chunkgrid/fault"
	"github.com/chunkgrid/chunkgrid/model/task"
	"github.com/chunkgrid/chunkgrid/scope"
	"github.com/chunkgrid/chunkgrid/service/messaging"
	"github.com/chunkgrid/chunkgrid/service/messaging/memory"
)

// Spec describes one worker's processor.
type Spec struct {
	Kind string   `json:"kind" yaml:"kind"`
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Config represents worker pool configuration.
type Config struct {
	// Workers lists the pool members; index is the worker id.
	Workers []Spec `json:"workers" yaml:"workers"`

	// HeartbeatInterval is how often each worker reports liveness.
	HeartbeatInterval time.Duration `json:"heartbeatInterval" yaml:"heartbeatInterval"`
}

// DefaultConfig returns a pool of four CPU workers.
func DefaultConfig() Config {
	return Config{
		Workers:           []Spec{{Kind: "cpu"}, {Kind: "cpu"}, {Kind: "cpu"}, {Kind: "cpu"}},
		HeartbeatInterval: 100 * time.Millisecond,
	}
}

// Dispatch is one unit of work sent to a specific worker, with every
// argument already materialized by the controller.
type Dispatch struct {
	TaskID   string
	Name     string
	Callable task.Callable
	Args     []interface{}
	Worker   int
}

// Report carries a worker's terminal verdict on one dispatch.
type Report struct {
	TaskID string
	Worker int
	Output interface{}
	Err    error
}

// Sink receives asynchronous worker events. Implemented by the controller.
type Sink interface {
	Report(report *Report)
	Heartbeat(worker int)
}

// Service runs the worker pool.
type Service struct {
	config Config
	sink   Sink
	queues []messaging.Queue[Dispatch]

	workers  []*worker
	workerWg sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

type worker struct {
	id       int
	spec     Spec
	service  *Service
	queue    messaging.Queue[Dispatch]
	ctx      context.Context
	cancelFn context.CancelFunc
}

// Option customises the worker service.
type Option func(*Service)

// WithSink sets the report sink.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithConfig overrides the pool configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// New creates a worker pool service.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:  DefaultConfig(),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.sink == nil {
		return nil, fmt.Errorf("report sink is required")
	}
	if len(s.config.Workers) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	for range s.config.Workers {
		s.queues = append(s.queues, memory.NewQueue[Dispatch](memory.DefaultConfig()))
	}
	return s, nil
}

// Processors describes the pool as placement candidates.
func (s *Service) Processors() []scope.Processor {
	out := make([]scope.Processor, 0, len(s.config.Workers))
	for i, spec := range s.config.Workers {
		out = append(out, scope.Processor{Worker: i, Kind: spec.Kind, Tags: spec.Tags})
	}
	return out
}

// Start launches one consume loop per worker.
func (s *Service) Start(ctx context.Context) error {
	for i, spec := range s.config.Workers {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			spec:     spec,
			service:  s,
			queue:    s.queues[i],
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Submit enqueues a dispatch onto the target worker's queue.
func (s *Service) Submit(ctx context.Context, d *Dispatch) error {
	if d.Worker < 0 || d.Worker >= len(s.queues) {
		return fmt.Errorf("unknown worker %d", d.Worker)
	}
	return s.queues[d.Worker].Publish(ctx, d)
}

// Cancel requests cooperative cancellation of a running dispatch. It only
// takes effect if the callable observes its context; work that ignores the
// context runs to completion.
func (s *Service) Cancel(taskID string) {
	s.mu.Lock()
	cancel := s.cancels[taskID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StopWorker terminates one worker's loops, simulating an unreachable
// worker: it stops consuming and its heartbeats cease.
func (s *Service) StopWorker(id int) {
	for _, w := range s.workers {
		if w.id == id {
			w.cancelFn()
		}
	}
}

// Shutdown stops all workers and waits for their loops to exit.
func (s *Service) Shutdown() {
	for _, w := range s.workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}

// run consumes dispatches until the worker context is cancelled.
func (w *worker) run() {
	defer w.service.workerWg.Done()

	ticker := time.NewTicker(w.service.config.HeartbeatInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.service.sink.Heartbeat(w.id)
			}
		}
	}()
	w.service.sink.Heartbeat(w.id)

	for {
		msg, err := w.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		w.process(msg)
	}
}

// process executes a single dispatch and reports the outcome.
func (w *worker) process(msg messaging.Message[Dispatch]) {
	d := msg.T()

	execCtx, cancel := context.WithCancel(w.ctx)
	w.service.mu.Lock()
	w.service.cancels[d.TaskID] = cancel
	w.service.mu.Unlock()
	defer func() {
		cancel()
		w.service.mu.Lock()
		delete(w.service.cancels, d.TaskID)
		w.service.mu.Unlock()
	}()

	output, err := w.invoke(execCtx, d)
	if err != nil {
		w.service.sink.Report(&Report{TaskID: d.TaskID, Worker: w.id, Err: err})
	} else {
		w.service.sink.Report(&Report{TaskID: d.TaskID, Worker: w.id, Output: output})
	}
	_ = msg.Ack()
}

// invoke runs the callable, converting panics into execution errors so a
// misbehaving callable never takes the worker down.
func (w *worker) invoke(ctx context.Context, d *Dispatch) (output interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fault.ExecutionError{TaskID: d.TaskID, Worker: w.id,
				Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	output, err = d.Callable(ctx, d.Args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", fault.ErrCancelled, err)
		}
		return nil, &fault.ExecutionError{TaskID: d.TaskID, Worker: w.id, Err: err}
	}
	return output, nil
}
