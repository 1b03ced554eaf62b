package darray_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkgrid/chunkgrid/darray"
	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
	"github.com/chunkgrid/chunkgrid/service/worker"
)

func newEngine(t *testing.T) *scheduler.Service {
	t.Helper()
	sched := scheduler.New()
	pool, err := worker.New(
		worker.WithSink(sched),
		worker.WithConfig(worker.Config{
			Workers:           []worker.Spec{{Kind: "cpu"}, {Kind: "cpu"}, {Kind: "cpu"}},
			HeartbeatInterval: 20 * time.Millisecond,
		}),
	)
	require.NoError(t, err)
	sched.SetDispatcher(pool)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	go func() { _ = sched.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		sched.Shutdown()
		pool.Shutdown()
	})
	return sched
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func matrix4x4(t *testing.T) *darray.Array {
	a, err := darray.NewArray([]int{4, 4}, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	require.NoError(t, err)
	return a
}

func TestDistributeCollectRoundTrip(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	d, err := darray.Distribute(ctx, sched, a, []int{2, 2})
	require.NoError(t, err)
	assert.Len(t, d.Parts(), 4)

	out, err := d.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, out.Shape)
	assert.Equal(t, a.Data, out.Data)
}

func TestDistributeRejectsBadBlocks(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	_, err := darray.Distribute(ctx, sched, a, []int{2})
	assert.Error(t, err, "rank mismatch")
	_, err = darray.Distribute(ctx, sched, a, []int{2, -1})
	assert.Error(t, err, "non-positive block size")
}

func TestZeros(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)

	d, err := darray.Zeros(ctx, sched, []int{3, 3}, []int{2, 2})
	require.NoError(t, err)
	out, err := d.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, out.Shape)
	assert.Equal(t, make([]float64, 9), out.Data)
}

func TestMap(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	d, err := darray.Distribute(ctx, sched, a, []int{2, 2})
	require.NoError(t, err)
	doubled, err := d.Map(ctx, func(x float64) float64 { return 2 * x })
	require.NoError(t, err)

	out, err := doubled.Collect(ctx)
	require.NoError(t, err)
	for i, v := range out.Data {
		assert.Equal(t, 2*a.Data[i], v)
	}
}

func TestZip(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	d, err := darray.Distribute(ctx, sched, a, []int{2, 2})
	require.NoError(t, err)
	other, err := d.Map(ctx, func(x float64) float64 { return -x })
	require.NoError(t, err)

	sum, err := d.Zip(ctx, other, func(x, y float64) float64 { return x + y })
	require.NoError(t, err)
	out, err := sum.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 16), out.Data)
}

func TestZipRejectsMismatchedPartitioning(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	d22, err := darray.Distribute(ctx, sched, a, []int{2, 2})
	require.NoError(t, err)
	d44, err := darray.Distribute(ctx, sched, a, []int{4, 4})
	require.NoError(t, err)

	_, err = d22.Zip(ctx, d44, func(x, y float64) float64 { return x + y })
	assert.Error(t, err)
}

func TestReduceIsOrderDeterministic(t *testing.T) {
	sched := newEngine(t)
	ctx := testCtx(t)
	a := matrix4x4(t)

	d, err := darray.Distribute(ctx, sched, a, []int{2, 2})
	require.NoError(t, err)

	sum, err := d.Reduce(ctx, 0, func(acc, x float64) float64 { return acc + x })
	require.NoError(t, err)
	assert.Equal(t, 136.0, sum)

	// non-associative fold observes strict row-major element order
	var observed []float64
	recorded, err := d.Reduce(ctx, 0, func(acc, x float64) float64 {
		observed = append(observed, x)
		return acc
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, recorded)
	assert.Equal(t, a.Data, observed)
}
