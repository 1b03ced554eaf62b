package data

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chunkgrid/chunkgrid/fault"
	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/scope"
)

func TestReadOnlyReplication(t *testing.T) {
	m := New()
	ctx := context.Background()

	h := chunk.NewHandle()
	m.Register(h, 0, []byte("payload"))

	// already resident: no transfer
	v, err := m.Materialize(ctx, h, 0)
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), v)
	assert.Equal(t, 0, m.Transfers())

	// replicate to another worker
	v, err = m.Materialize(ctx, h, 2)
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), v)
	assert.Equal(t, 1, m.Transfers())

	// replica is cached
	_, err = m.Materialize(ctx, h, 2)
	assert.Nil(t, err)
	assert.Equal(t, 1, m.Transfers())

	_, resident := m.Value(h.ID, 2)
	assert.True(t, resident)
}

func TestMutableIsNeverReplicated(t *testing.T) {
	m := New()
	ctx := context.Background()

	h := chunk.NewMutable()
	m.Register(h, 1, 42)

	v, err := m.Materialize(ctx, h, 1)
	assert.Nil(t, err)
	assert.Equal(t, 42, v)

	_, err = m.Materialize(ctx, h, 0)
	var transfer *fault.DataTransferError
	assert.True(t, errors.As(err, &transfer))

	owner, ok := m.Owner(h.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, owner)
	assert.Equal(t, scope.Worker(1).String(), m.ImpliedScope(h).String())
	assert.Equal(t, scope.Any().String(), m.ImpliedScope(chunk.NewHandle()).String())
}

func TestMutationChainAndCommit(t *testing.T) {
	m := New()
	h := chunk.NewMutable()
	m.Register(h, 0, 0)

	assert.Equal(t, "", m.ChainMutator(h.ID, "t1"))
	assert.Equal(t, "t1", m.ChainMutator(h.ID, "t2"))
	assert.Equal(t, "t2", m.LastMutator(h.ID))

	assert.Equal(t, 0, m.Generation(h.ID))
	m.CommitMutation(h.ID, 0, 1)
	assert.Equal(t, 1, m.Generation(h.ID))
	m.CommitMutation(h.ID, 0, 2)
	assert.Equal(t, 2, m.Generation(h.ID))

	v, ok := m.Value(h.ID, 0)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMarkWorkerLost(t *testing.T) {
	m := New()
	ctx := context.Background()

	owned := chunk.NewMutable()
	m.Register(owned, 1, "state")
	elsewhere := chunk.NewMutable()
	m.Register(elsewhere, 0, "safe")
	readonly := chunk.NewHandle()
	m.Register(readonly, 0, "shared")
	_, err := m.Materialize(ctx, readonly, 1)
	assert.Nil(t, err)

	lost := m.MarkWorkerLost(1)
	assert.Equal(t, []string{owned.ID}, lost)
	assert.True(t, m.Lost(owned.ID))
	assert.False(t, m.Lost(elsewhere.ID))

	_, err = m.Materialize(ctx, owned, 1)
	var lostErr *fault.LostDataError
	assert.True(t, errors.As(err, &lostErr))

	// read-only chunk survives through its remaining replica
	v, err := m.Materialize(ctx, readonly, 3)
	assert.Nil(t, err)
	assert.Equal(t, "shared", v)
}

func TestShardResolution(t *testing.T) {
	m := New()
	shard := chunk.NewShard()
	member0 := chunk.NewMutable()
	shard.Members[0] = member0

	resolved, err := m.ResolveShard(shard, 0)
	assert.Nil(t, err)
	assert.Equal(t, member0.ID, resolved.ID)

	_, err = m.ResolveShard(shard, 7)
	assert.NotNil(t, err)
}

type fakeFileStore struct {
	values map[string]interface{}
}

func (f *fakeFileStore) Materialize(ctx context.Context, url string) (interface{}, error) {
	v, ok := f.values[url]
	if !ok {
		return nil, fmt.Errorf("not found: %s", url)
	}
	return v, nil
}

func (f *fakeFileStore) Persist(ctx context.Context, value interface{}, url string) error {
	f.values[url] = value
	return nil
}

func TestFileBackedChunk(t *testing.T) {
	m := New()
	ctx := context.Background()
	store := &fakeFileStore{values: map[string]interface{}{"mem://data/c1.json": "from-file"}}
	m.SetFileStore(store)

	h := chunk.NewHandle()
	h.URL = "mem://data/c1.json"

	v, err := m.Materialize(ctx, h, 0)
	assert.Nil(t, err)
	assert.Equal(t, "from-file", v)

	out := chunk.NewHandle()
	out.URL = "mem://data/c2.json"
	m.Register(out, 0, "computed")
	assert.Nil(t, m.Persist(ctx, out))
	assert.Equal(t, "computed", store.values["mem://data/c2.json"])
}

func TestResidentBytes(t *testing.T) {
	m := New()
	big := chunk.NewHandle()
	m.Register(big, 0, make([]float64, 100))
	small := chunk.NewHandle()
	m.Register(small, 1, make([]float64, 2))

	assert.Greater(t, m.ResidentBytes([]string{big.ID, small.ID}, 0),
		m.ResidentBytes([]string{big.ID, small.ID}, 1))
	assert.Equal(t, 0, m.ResidentBytes([]string{big.ID}, 3))
}
