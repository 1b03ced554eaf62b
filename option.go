package chunkgrid

import (
	"github.com/viant/afs"
	"github.com/viant/x"

	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
	"github.com/chunkgrid/chunkgrid/service/checkpoint"
	"github.com/chunkgrid/chunkgrid/service/dao"
	"github.com/chunkgrid/chunkgrid/service/event"
	"github.com/chunkgrid/chunkgrid/service/worker"
)

// Option customises the engine composition.
type Option func(s *Service)

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithWorkers declares the worker roster (kinds and tags).
func WithWorkers(specs ...worker.Spec) Option {
	return func(s *Service) { s.config.Workers.Workers = specs }
}

// WithFileSystem overrides the file system abstraction used for config,
// checkpoints and file-backed chunks.
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithCheckpointer installs a custom checkpoint backend.
func WithCheckpointer(ck checkpoint.Service) Option {
	return func(s *Service) { s.checkpointer = ck }
}

// WithCheckpointTypes registers concrete types so checkpointed values decode
// back to their original Go type.
func WithCheckpointTypes(types ...*x.Type) Option {
	return func(s *Service) { s.checkpointTypes = types }
}

func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.eventService = service }
}

// WithNotifier overrides the lifecycle sink; by default transitions go to
// the typed event bus.
func WithNotifier(n scheduler.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRecordStore overrides the task record store.
func WithRecordStore(records dao.Service[string, scheduler.Record]) Option {
	return func(s *Service) { s.records = records }
}

// WithTracing enables OTEL span export; outputFile empty means stdout.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracingName = serviceName
		s.tracingVersion = serviceVersion
		s.tracingOutput = outputFile
	}
}
