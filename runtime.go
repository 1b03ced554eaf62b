package chunkgrid

import (
	"context"
	"errors"
	"log"

	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/model/task"
	"github.com/chunkgrid/chunkgrid/progress"
	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
	"github.com/chunkgrid/chunkgrid/service/dao"
	"github.com/chunkgrid/chunkgrid/service/data"
	"github.com/chunkgrid/chunkgrid/service/worker"
)

// Runtime is the user-facing façade over the controller and the worker
// pool.
type Runtime struct {
	scheduler *scheduler.Service
	pool      *worker.Service
	records   dao.Service[string, scheduler.Record]
}

// Start launches the worker pool and the controller loop. The loop runs
// until ctx is cancelled or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.pool.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := r.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
	}()
	return nil
}

// Scheduler exposes the underlying controller for lower-level integrations
// such as the darray package.
func (r *Runtime) Scheduler() *scheduler.Service { return r.scheduler }

// Shutdown stops the controller and the worker pool.
func (r *Runtime) Shutdown() {
	r.scheduler.Shutdown()
	r.pool.Shutdown()
}

// Spawn submits a task. Arguments are classified by type: a *scheduler.Handle
// becomes a task ref (read edge), a *chunk.Handle a data ref, a *chunk.Shard
// a shard ref, anything else a literal.
func (r *Runtime) Spawn(ctx context.Context, callable task.Callable, args []interface{}, options ...task.Option) (*scheduler.Handle, error) {
	return r.scheduler.Spawn(ctx, callable, scheduler.Args(args...), options...)
}

// Sync runs fn in a synchronization scope: it returns only after every task
// spawned within settled, re-raising the first failure by completion order.
func (r *Runtime) Sync(ctx context.Context, fn func(sc *scheduler.SyncScope) error) error {
	return r.scheduler.Sync(ctx, fn)
}

// Cancel requests best-effort cancellation of a task.
func (r *Runtime) Cancel(ctx context.Context, taskID string) bool {
	return r.scheduler.Cancel(ctx, taskID)
}

// Reprioritize adjusts the priority of a not-yet-dispatched task.
func (r *Runtime) Reprioritize(ctx context.Context, taskID string, priority int) bool {
	return r.scheduler.Reprioritize(ctx, taskID, priority)
}

// Snapshot returns a read-only view of the task graph.
func (r *Runtime) Snapshot(ctx context.Context) []scheduler.TaskSnapshot {
	return r.scheduler.Snapshot(ctx)
}

// NewMutable creates a pinned mutable chunk on an automatically chosen
// worker.
func (r *Runtime) NewMutable(ctx context.Context, value interface{}) (*chunk.Handle, error) {
	return r.scheduler.NewMutable(ctx, value, data.DriverWorker)
}

// NewMutableOn creates a pinned mutable chunk on a specific worker.
func (r *Runtime) NewMutableOn(ctx context.Context, value interface{}, workerID int) (*chunk.Handle, error) {
	return r.scheduler.NewMutable(ctx, value, workerID)
}

// NewShard builds a shard with one mutable member per live worker.
func (r *Runtime) NewShard(ctx context.Context, init task.Callable) (*chunk.Shard, error) {
	return r.scheduler.NewShard(ctx, init)
}

// FetchChunk waits out any in-flight mutator and returns the chunk's
// current value.
func (r *Runtime) FetchChunk(ctx context.Context, h *chunk.Handle) (interface{}, error) {
	return r.scheduler.FetchChunk(ctx, h)
}

// Progress returns a snapshot of the live progress counters.
func (r *Runtime) Progress() progress.Progress {
	return r.scheduler.Progress().Snapshot()
}

// Task returns the record of a single task.
func (r *Runtime) Task(ctx context.Context, id string) (*scheduler.Record, error) {
	return r.records.Load(ctx, id)
}

// Tasks lists task records, optionally filtered (e.g. by State or Name).
func (r *Runtime) Tasks(ctx context.Context, parameters ...*dao.Parameter) ([]*scheduler.Record, error) {
	return r.records.List(ctx, parameters...)
}

// FailWorker declares a worker unreachable, failing its dispatched tasks and
// marking its exclusively owned mutable chunks lost.
func (r *Runtime) FailWorker(id int) {
	r.pool.StopWorker(id)
	r.scheduler.FailWorker(id)
}
