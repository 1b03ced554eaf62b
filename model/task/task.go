// Package task defines the task record: an opaque boxed invocation with a
// tagged argument list, placement scope and mutation declarations. Dependency
// detection downstream is a tag match on arguments, never runtime type
// inspection of the values themselves.
package task

import (
	"context"
	"time"

	"github.com/chunkgrid/chunkgrid/internal/clock"
	"github.com/chunkgrid/chunkgrid/internal/idgen"
	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/scope"
)

// Callable is the unit of deferred work. Arguments arrive fully materialized
// in declaration order; the returned value becomes the task's result chunk.
type Callable func(ctx context.Context, args []interface{}) (interface{}, error)

// ArgKind tags a task argument.
type ArgKind string

const (
	// ArgLiteral is an immediate value passed through unchanged.
	ArgLiteral ArgKind = "literal"
	// ArgTask references another task's result and adds a read edge.
	ArgTask ArgKind = "task"
	// ArgData references a chunk; mutable chunks listed in Mutates add a
	// write edge chained after the chunk's last recorded mutator.
	ArgData ArgKind = "data"
	// ArgShard references a shard, resolved at dispatch time to the member
	// owned by the chosen worker.
	ArgShard ArgKind = "shard"
)

// Argument is one tagged entry of a task's argument list.
type Argument struct {
	Kind    ArgKind
	Literal interface{}
	TaskID  string
	Data    *chunk.Handle
	Shard   *chunk.Shard
}

// Literal builds a literal argument.
func Literal(v interface{}) Argument { return Argument{Kind: ArgLiteral, Literal: v} }

// Output builds an argument referencing another task's result.
func Output(taskID string) Argument { return Argument{Kind: ArgTask, TaskID: taskID} }

// Data builds an argument referencing a chunk.
func Data(h *chunk.Handle) Argument { return Argument{Kind: ArgData, Data: h} }

// ShardOf builds an argument referencing a shard.
func ShardOf(s *chunk.Shard) Argument { return Argument{Kind: ArgShard, Shard: s} }

// Task describes one deferred unit of computation. The record is created on
// spawn and owned by the scheduler controller afterwards.
type Task struct {
	ID            string
	Name          string
	Callable      Callable
	Args          []Argument
	Scope         scope.Scope
	Mutates       []*chunk.Handle
	MutatesShards []*chunk.Shard
	After         []string
	Priority      int
	Deadline      time.Duration
	CheckpointKey string
	CreatedAt     time.Time
}

// Option mutates a task at spawn time.
type Option func(*Task)

// WithID overrides the generated task id. Callers opting in are responsible
// for uniqueness.
func WithID(id string) Option {
	return func(t *Task) { t.ID = id }
}

// WithName sets a human-readable task name used in logs and events.
func WithName(name string) Option {
	return func(t *Task) { t.Name = name }
}

// WithScope constrains where the task may run.
func WithScope(s scope.Scope) Option {
	return func(t *Task) { t.Scope = s }
}

// WithMutates declares the mutable chunks the task writes. Each mutation is
// chained after the chunk's last recorded mutator.
func WithMutates(handles ...*chunk.Handle) Option {
	return func(t *Task) { t.Mutates = append(t.Mutates, handles...) }
}

// WithMutatesShard declares shard-wide mutation; the concrete member is
// resolved at dispatch time.
func WithMutatesShard(shards ...*chunk.Shard) Option {
	return func(t *Task) { t.MutatesShards = append(t.MutatesShards, shards...) }
}

// WithAfter adds explicit ordering edges on the listed task ids.
func WithAfter(taskIDs ...string) Option {
	return func(t *Task) { t.After = append(t.After, taskIDs...) }
}

// WithPriority sets the ready-queue priority; higher runs first.
func WithPriority(priority int) Option {
	return func(t *Task) { t.Priority = priority }
}

// WithDeadline marks the task Failed with a timeout if no worker report
// arrives within d of dispatch. The worker is not pre-empted.
func WithDeadline(d time.Duration) Option {
	return func(t *Task) { t.Deadline = d }
}

// WithCheckpointKey opts the task into checkpointing under a caller-chosen
// stable key.
func WithCheckpointKey(key string) Option {
	return func(t *Task) { t.CheckpointKey = key }
}

// New creates a task record for the given callable and tagged arguments.
func New(callable Callable, args []Argument, options ...Option) *Task {
	t := &Task{
		ID:        idgen.New(),
		Callable:  callable,
		Args:      args,
		Scope:     scope.Any(),
		CreatedAt: clock.Now(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}
