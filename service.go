package chunkgrid

import (
	"context"
	"log"

	"github.com/viant/afs"
	"github.com/viant/x"

	"github.com/chunkgrid/chunkgrid/progress"
	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
	"github.com/chunkgrid/chunkgrid/service/checkpoint"
	ckfs "github.com/chunkgrid/chunkgrid/service/checkpoint/fs"
	"github.com/chunkgrid/chunkgrid/service/dao"
	"github.com/chunkgrid/chunkgrid/service/dao/store"
	"github.com/chunkgrid/chunkgrid/service/event"
	"github.com/chunkgrid/chunkgrid/service/filedata"
	"github.com/chunkgrid/chunkgrid/service/worker"
	"github.com/chunkgrid/chunkgrid/tracing"
)

// Service is the composition root: it wires the controller, the worker
// pool, the data manager's file store, checkpointing and the event bus, and
// exposes the high-level Runtime façade.
type Service struct {
	config          *Config
	fs              afs.Service
	eventService    *event.Service
	checkpointer    checkpoint.Service
	checkpointTypes []*x.Type
	notifier        scheduler.Notifier
	records         dao.Service[string, scheduler.Record]
	scheduler       *scheduler.Service
	pool            *worker.Service
	runtime         *Runtime
	tracingName     string
	tracingVersion  string
	tracingOutput   string
}

// New creates the engine with the supplied options.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		fs:     afs.New(),
	}
	if err := s.init(options); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.tracingName != "" {
		if err := tracing.Init(s.tracingName, s.tracingVersion, s.tracingOutput); err != nil {
			log.Printf("tracing init: %v", err)
		}
	}
	if s.eventService == nil {
		s.eventService = event.New(event.WithQueueConfig(s.config.Queue))
	}
	if s.checkpointer == nil && s.config.Checkpoint.BaseURL != "" {
		s.checkpointer = ckfs.New(s.fs, s.config.Checkpoint.BaseURL, ckfs.WithTypes(s.checkpointTypes...))
	}
	if s.records == nil {
		s.records = store.NewMemoryStore[string, scheduler.Record](
			func(r *scheduler.Record) string { return r.ID },
			func(r *scheduler.Record, field string) interface{} {
				switch field {
				case "ID":
					return r.ID
				case "Name":
					return r.Name
				case "State":
					return string(r.State())
				}
				return nil
			})
	}
	if s.notifier == nil {
		s.notifier = &lifecycleNotifier{events: s.eventService}
	}

	s.scheduler = scheduler.New(
		scheduler.WithConfig(s.config.Scheduler),
		scheduler.WithCheckpointer(s.checkpointer),
		scheduler.WithNotifier(s.notifier),
		scheduler.WithRecordStore(s.records),
		scheduler.WithProgress(progress.New()),
	)
	s.scheduler.Data().SetFileStore(filedata.New(s.fs))

	pool, err := worker.New(
		worker.WithSink(s.scheduler),
		worker.WithConfig(s.config.Workers),
	)
	if err != nil {
		return err
	}
	s.pool = pool
	s.scheduler.SetDispatcher(pool)

	s.runtime = &Runtime{
		scheduler: s.scheduler,
		pool:      pool,
		records:   s.records,
	}
	return nil
}

// Runtime returns the high-level façade.
func (s *Service) Runtime() *Runtime { return s.runtime }

// Events returns the typed event bus carrying task lifecycle events.
func (s *Service) Events() *event.Service { return s.eventService }

// lifecycleNotifier bridges controller lifecycle transitions onto the typed
// event bus.
type lifecycleNotifier struct {
	events *event.Service
}

func (n *lifecycleNotifier) Notify(lifecycle *scheduler.Lifecycle) {
	publisher := event.PublisherOf[scheduler.Lifecycle](n.events)
	evt := event.NewEvent(&event.Context{
		TaskID:    lifecycle.TaskID,
		TaskName:  lifecycle.Name,
		Worker:    lifecycle.Worker,
		EventType: string(lifecycle.State),
	}, *lifecycle)
	if err := publisher.Publish(context.Background(), evt); err != nil {
		log.Printf("lifecycle publish %s: %v", lifecycle.TaskID, err)
	}
}
