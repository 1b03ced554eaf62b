// Package progress keeps aggregated task counters for a scheduler instance.
// The controller applies deltas as tasks move through their lifecycle; any
// component holding the tracker can read a consistent snapshot.
package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change. Fields are signed so a
// task leaving one state and entering another is a single Update call.
type Delta struct {
	Spawned    int
	Waiting    int
	Ready      int
	Dispatched int
	Completed  int
	Failed     int
	Cancelled  int
}

// Progress keeps aggregated counters. Safe for concurrent use.
type Progress struct {
	StartedAt time.Time

	SpawnedTasks    int
	WaitingTasks    int
	ReadyTasks      int
	DispatchedTasks int
	CompletedTasks  int
	FailedTasks     int
	CancelledTasks  int

	mu       sync.Mutex
	onChange func(Progress)
}

// New creates a tracker stamped with the current time.
func New() *Progress {
	return &Progress{StartedAt: time.Now()}
}

// OnChange registers a callback invoked with a snapshot after every update.
// The callback runs outside the critical section.
func (p *Progress) OnChange(fn func(Progress)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Update applies the supplied delta.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.SpawnedTasks += d.Spawned
	p.WaitingTasks += d.Waiting
	p.ReadyTasks += d.Ready
	p.DispatchedTasks += d.Dispatched
	p.CompletedTasks += d.Completed
	p.FailedTasks += d.Failed
	p.CancelledTasks += d.Cancelled
	snapshot := p.snapshotLocked()
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Progress) snapshotLocked() Progress {
	return Progress{
		StartedAt:       p.StartedAt,
		SpawnedTasks:    p.SpawnedTasks,
		WaitingTasks:    p.WaitingTasks,
		ReadyTasks:      p.ReadyTasks,
		DispatchedTasks: p.DispatchedTasks,
		CompletedTasks:  p.CompletedTasks,
		FailedTasks:     p.FailedTasks,
		CancelledTasks:  p.CancelledTasks,
	}
}
