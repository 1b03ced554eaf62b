package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/scope"
)

func TestNew(t *testing.T) {
	handle := chunk.NewMutable()
	shard := chunk.NewShard()

	created := New(nil, []Argument{Literal(1), Output("t-1"), Data(handle), ShardOf(shard)},
		WithName("combine"),
		WithScope(scope.Kind("cpu")),
		WithMutates(handle),
		WithMutatesShard(shard),
		WithAfter("t-0"),
		WithPriority(5),
		WithDeadline(time.Second),
		WithCheckpointKey("combine/v1"),
	)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "combine", created.Name)
	assert.Equal(t, 5, created.Priority)
	assert.Equal(t, time.Second, created.Deadline)
	assert.Equal(t, "combine/v1", created.CheckpointKey)
	assert.Equal(t, []string{"t-0"}, created.After)
	assert.Equal(t, []*chunk.Handle{handle}, created.Mutates)
	assert.Equal(t, []*chunk.Shard{shard}, created.MutatesShards)
	assert.False(t, created.CreatedAt.IsZero())

	assert.Equal(t, ArgLiteral, created.Args[0].Kind)
	assert.Equal(t, ArgTask, created.Args[1].Kind)
	assert.Equal(t, "t-1", created.Args[1].TaskID)
	assert.Equal(t, ArgData, created.Args[2].Kind)
	assert.Equal(t, ArgShard, created.Args[3].Kind)
}

func TestWithIDOverridesGenerated(t *testing.T) {
	created := New(nil, nil, WithID("stable-id"))
	assert.Equal(t, "stable-id", created.ID)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StateWaiting, StateReady, true},
		{StateWaiting, StateFailed, true},
		{StateReady, StateDispatched, true},
		{StateDispatched, StateCompleted, true},
		{StateDispatched, StateFailed, true},
		{StateReady, StateWaiting, false},
		{StateCompleted, StateDispatched, false},
		{StateFailed, StateReady, false},
		{StateCompleted, StateFailed, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%v -> %v", tc.from, tc.to)
	}
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateDispatched.IsTerminal())
}
