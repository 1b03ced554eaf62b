// Package fault defines the error taxonomy surfaced by the scheduler. Every
// terminal task error is one of the types below so that callers can branch
// with errors.Is / errors.As regardless of how many wrapping layers the error
// travelled through.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrScheduling indicates the admissible-processor intersection for a task
	// was empty against the current worker set.
	ErrScheduling = errors.New("no admissible worker")

	// ErrTimeout indicates a dispatched task produced no report before its
	// deadline.
	ErrTimeout = errors.New("task deadline exceeded")

	// ErrLostData indicates the owning worker of a mutable chunk became
	// unreachable with no valid checkpoint.
	ErrLostData = errors.New("mutable data lost")

	// ErrCancelled indicates the task was cancelled before it produced a result.
	ErrCancelled = errors.New("task cancelled")

	// ErrCycle indicates a spawn would introduce a dependency cycle.
	ErrCycle = errors.New("dependency cycle")
)

// SchedulingError is raised when placement resolution yields no worker.
type SchedulingError struct {
	TaskID string
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling task %s: %s: %v", e.TaskID, e.Reason, ErrScheduling)
}

func (e *SchedulingError) Unwrap() error { return ErrScheduling }

// ExecutionError wraps an error (or recovered panic) raised by a callable
// while it ran on a worker. The worker itself survives.
type ExecutionError struct {
	TaskID string
	Worker int
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s failed on worker %d: %v", e.TaskID, e.Worker, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// DependencyFailure marks a task that was never executed because an upstream
// dependency failed. Origin identifies the originally-failed task; Cause is
// its terminal error.
type DependencyFailure struct {
	TaskID string
	Origin string
	Cause  error
}

func (e *DependencyFailure) Error() string {
	return fmt.Sprintf("task %s not run: dependency %s failed: %v", e.TaskID, e.Origin, e.Cause)
}

func (e *DependencyFailure) Unwrap() error { return e.Cause }

// DataTransferError indicates a chunk move or replication failed.
type DataTransferError struct {
	ChunkID string
	Worker  int
	Err     error
}

func (e *DataTransferError) Error() string {
	return fmt.Sprintf("transfer of chunk %s to worker %d failed: %v", e.ChunkID, e.Worker, e.Err)
}

func (e *DataTransferError) Unwrap() error { return e.Err }

// TimeoutError indicates no completion report arrived before the task
// deadline. The worker may still be running the callable.
type TimeoutError struct {
	TaskID string
	Worker int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s on worker %d: %v", e.TaskID, e.Worker, ErrTimeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// LostDataError indicates a consumer referenced a mutable chunk whose owning
// worker became unreachable.
type LostDataError struct {
	ChunkID string
	Worker  int
}

func (e *LostDataError) Error() string {
	return fmt.Sprintf("chunk %s owned by unreachable worker %d: %v", e.ChunkID, e.Worker, ErrLostData)
}

func (e *LostDataError) Unwrap() error { return ErrLostData }

// CheckpointError indicates persist/restore of a checkpoint failed. It is
// never fatal - the scheduler logs it and falls back to recomputation.
type CheckpointError struct {
	Key string
	Op  string // "persist" or "restore"
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle detected at spawn time, before the
// task entered the graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCycle, e.Path)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Origin walks an error chain and returns the id of the originally-failed
// task when the chain contains a DependencyFailure, otherwise "".
func Origin(err error) string {
	var dep *DependencyFailure
	if errors.As(err, &dep) {
		return dep.Origin
	}
	return ""
}
