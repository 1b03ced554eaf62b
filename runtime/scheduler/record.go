package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/model/task"
)

// Record is the externally readable side of a task: its state, result and
// error. The controller loop is the only writer; result and err are published
// to readers by closing done, so reads after <-done are race-free.
type Record struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	CompletedAt *time.Time

	state atomic.Int32

	done        chan struct{}
	result      interface{}
	err         error
	worker      int
	terminalSeq int
}

func newRecord(t *task.Task) *Record {
	r := &Record{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
		done:      make(chan struct{}),
		worker:    -1,
	}
	r.setState(task.StateWaiting)
	return r
}

var stateByRank = []task.State{task.StateWaiting, task.StateReady, task.StateDispatched, task.StateCompleted, task.StateFailed}

func (r *Record) setState(s task.State) {
	for i, candidate := range stateByRank {
		if candidate == s {
			r.state.Store(int32(i))
			return
		}
	}
}

// State returns the task's current lifecycle state without blocking.
func (r *Record) State() task.State {
	return stateByRank[r.state.Load()]
}

// Done exposes the per-task completion signal.
func (r *Record) Done() <-chan struct{} { return r.done }

// node is the controller-private bookkeeping for one task. Accessed only
// from the controller loop.
type node struct {
	task   *task.Task
	record *Record

	state      task.State
	pending    int
	dependsOn  []string
	dependents []string

	priority int
	deadline time.Duration
	spawnSeq int64

	worker      int
	dispatchSeq int
	cancelled   bool

	resultChunk *chunk.Handle
	// shardMembers holds the member chunk ids substituted for mutated shards
	// at dispatch time, so their generations can be committed on completion.
	shardMembers []string
}
