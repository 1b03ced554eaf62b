package scheduler

import (
	"context"
	"sync"

	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/model/task"
)

// Handle is a future over one spawned task.
type Handle struct {
	s   *Service
	rec *Record
}

// ID returns the task id.
func (h *Handle) ID() string { return h.rec.ID }

// Status returns the task's current state without blocking.
func (h *Handle) Status() task.State { return h.rec.State() }

// Wait blocks until the task is terminal and returns its error, if any.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.rec.done:
		return h.rec.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch blocks until the task is terminal, re-raising the stored error
// (including its causal chain) on failure and returning the result on
// completion. The result was materialized locally when the completion was
// recorded, so no further transfer is needed.
func (h *Handle) Fetch(ctx context.Context) (interface{}, error) {
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return h.rec.result, nil
}

// terminalSeq is valid only after Done is closed.
func (h *Handle) terminalSeqLocked() int { return h.rec.terminalSeq }

// Arg classifies a spawn argument by tag: handles become task refs, chunks
// data refs, shards shard refs, everything else a literal.
func Arg(v interface{}) task.Argument {
	switch actual := v.(type) {
	case *Handle:
		return task.Output(actual.ID())
	case *chunk.Handle:
		return task.Data(actual)
	case *chunk.Shard:
		return task.ShardOf(actual)
	case task.Argument:
		return actual
	default:
		return task.Literal(v)
	}
}

// Args classifies a list of spawn arguments.
func Args(values ...interface{}) []task.Argument {
	out := make([]task.Argument, 0, len(values))
	for _, v := range values {
		out = append(out, Arg(v))
	}
	return out
}

// SyncScope collects every handle spawned within a Sync block. At block exit
// the scope blocks until all collected handles are terminal and re-raises the
// first failure by completion order; it never returns early on failure, so no
// in-flight work is left unaccounted for.
type SyncScope struct {
	s       *Service
	mu      sync.Mutex
	handles []*Handle
}

// Spawn spawns a task and collects its handle in the scope.
func (sc *SyncScope) Spawn(ctx context.Context, callable task.Callable, args []task.Argument, options ...task.Option) (*Handle, error) {
	h, err := sc.s.Spawn(ctx, callable, args, options...)
	if err != nil {
		return nil, err
	}
	sc.mu.Lock()
	sc.handles = append(sc.handles, h)
	sc.mu.Unlock()
	return h, nil
}

// Collect adds an externally spawned handle to the scope.
func (sc *SyncScope) Collect(handles ...*Handle) {
	sc.mu.Lock()
	sc.handles = append(sc.handles, handles...)
	sc.mu.Unlock()
}

// Sync runs fn within a synchronization scope. After fn returns, Sync waits
// for every collected handle to settle, then returns the first failure in
// completion order, or fn's own error when every task succeeded.
func (s *Service) Sync(ctx context.Context, fn func(sc *SyncScope) error) error {
	sc := &SyncScope{s: s}
	fnErr := fn(sc)

	sc.mu.Lock()
	handles := append([]*Handle(nil), sc.handles...)
	sc.mu.Unlock()

	var firstErr error
	firstSeq := -1
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			if ctx.Err() != nil && err == ctx.Err() {
				return err
			}
			if seq := h.terminalSeqLocked(); firstSeq < 0 || seq < firstSeq {
				firstSeq = seq
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return fnErr
}
