package scheduler

import (
	"time"

	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/model/task"
	"github.com/chunkgrid/chunkgrid/service/worker"
)

// controller loop events. Requests carry a reply channel; asynchronous
// worker events do not.
type event interface{}

type spawnRequest struct {
	task     *task.Task
	restored interface{}
	hasValue bool
	reply    chan spawnReply
}

type spawnReply struct {
	handle *Handle
	err    error
}

type reportEvent struct {
	report *worker.Report
}

type heartbeatEvent struct {
	worker int
}

type workerLostEvent struct {
	worker int
}

type cancelRequest struct {
	taskID string
	reply  chan bool
}

type reprioritizeRequest struct {
	taskID   string
	priority int
	reply    chan bool
}

type timeoutEvent struct {
	taskID      string
	dispatchSeq int
}

type snapshotRequest struct {
	reply chan []TaskSnapshot
}

type mutableRequest struct {
	value  interface{}
	worker int // -1 picks the least-loaded live worker
	reply  chan mutableReply
}

type mutableReply struct {
	handle *chunk.Handle
	err    error
}

type adoptMutableRequest struct {
	taskID string // completed task whose result chunk is promoted
	worker int
	reply  chan mutableReply
}

type chunkStatusRequest struct {
	handle *chunk.Handle
	reply  chan chunkStatus
}

type chunkStatus struct {
	pendingMutator *Handle
	lost           bool
	lostWorker     int
}

type chunkValueRequest struct {
	handle *chunk.Handle
	reply  chan chunkValueReply
}

type chunkValueReply struct {
	value interface{}
	err   error
}

// TaskSnapshot is one entry of the read-only graph view exposed for external
// introspection and visualization.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	State       task.State `json:"state"`
	Priority    int        `json:"priority,omitempty"`
	Worker      int        `json:"worker"`
	DependsOn   []string   `json:"dependsOn,omitempty"`
	Dependents  []string   `json:"dependents,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Lifecycle is the structured telemetry payload emitted on task transitions.
type Lifecycle struct {
	TaskID    string     `json:"taskID"`
	Name      string     `json:"name,omitempty"`
	State     task.State `json:"state"`
	Worker    int        `json:"worker"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Notifier receives lifecycle events; consumption is external.
type Notifier interface {
	Notify(event *Lifecycle)
}
