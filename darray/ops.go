package darray

import (
	"context"
	"fmt"

	"github.com/chunkgrid/chunkgrid/model/task"
	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
)

// DArray is a distributed array: one task handle per block, in row-major
// block order. Every operation is asynchronous; only Collect and Reduce
// force results back to the caller.
type DArray struct {
	s      *scheduler.Service
	layout *layout
	parts  []*scheduler.Handle
}

// Shape returns the logical array shape.
func (d *DArray) Shape() []int { return append([]int(nil), d.layout.shape...) }

// Blocks returns the block partitioning spec.
func (d *DArray) Blocks() []int { return append([]int(nil), d.layout.blocks...) }

// Parts exposes the per-block handles in row-major block order.
func (d *DArray) Parts() []*scheduler.Handle { return append([]*scheduler.Handle(nil), d.parts...) }

// Wait blocks until every block task settled, returning the first error.
func (d *DArray) Wait(ctx context.Context) error {
	for _, h := range d.parts {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func asArray(v interface{}) (*Array, error) {
	a, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("expected *darray.Array, got %T", v)
	}
	return a, nil
}

// Distribute partitions a into blocks and spawns one task per block, letting
// the controller spread the blocks across workers.
func Distribute(ctx context.Context, s *scheduler.Service, a *Array, blocks []int) (*DArray, error) {
	l, err := newLayout(a.Shape, blocks)
	if err != nil {
		return nil, err
	}
	d := &DArray{s: s, layout: l, parts: make([]*scheduler.Handle, l.blockCount())}
	for block := range d.parts {
		part := l.extract(a, block)
		h, err := s.Spawn(ctx, identity, scheduler.Args(part), task.WithName("darray-distribute"))
		if err != nil {
			return nil, err
		}
		d.parts[block] = h
	}
	return d, nil
}

// Zeros builds a distributed zero array without materializing it first; each
// block is allocated by its own task.
func Zeros(ctx context.Context, s *scheduler.Service, shape, blocks []int) (*DArray, error) {
	l, err := newLayout(shape, blocks)
	if err != nil {
		return nil, err
	}
	d := &DArray{s: s, layout: l, parts: make([]*scheduler.Handle, l.blockCount())}
	for block := range d.parts {
		lo, hi := l.bounds(block)
		partShape := make([]int, len(lo))
		for dim := range lo {
			partShape[dim] = hi[dim] - lo[dim]
		}
		h, err := s.Spawn(ctx, allocate, scheduler.Args(partShape), task.WithName("darray-zeros"))
		if err != nil {
			return nil, err
		}
		d.parts[block] = h
	}
	return d, nil
}

// Collect fetches every block and reassembles the full array on the caller.
func (d *DArray) Collect(ctx context.Context) (*Array, error) {
	size := 1
	for _, dim := range d.layout.shape {
		size *= dim
	}
	out := &Array{Shape: d.Shape(), Data: make([]float64, size)}
	for block, h := range d.parts {
		v, err := h.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		part, err := asArray(v)
		if err != nil {
			return nil, err
		}
		d.layout.place(out, block, part)
	}
	return out, nil
}

// Map applies fn elementwise, producing a new distributed array with the
// same partitioning. Each block maps in its own task, reading the source
// block where it already resides.
func (d *DArray) Map(ctx context.Context, fn func(x float64) float64) (*DArray, error) {
	out := &DArray{s: d.s, layout: d.layout, parts: make([]*scheduler.Handle, len(d.parts))}
	callable := func(ctx context.Context, args []interface{}) (interface{}, error) {
		part, err := asArray(args[0])
		if err != nil {
			return nil, err
		}
		mapped := &Array{Shape: append([]int(nil), part.Shape...), Data: make([]float64, len(part.Data))}
		for i, x := range part.Data {
			mapped.Data[i] = fn(x)
		}
		return mapped, nil
	}
	for block, h := range d.parts {
		spawned, err := d.s.Spawn(ctx, callable, scheduler.Args(h), task.WithName("darray-map"))
		if err != nil {
			return nil, err
		}
		out.parts[block] = spawned
	}
	return out, nil
}

// Zip combines two identically partitioned arrays elementwise.
func (d *DArray) Zip(ctx context.Context, other *DArray, fn func(x, y float64) float64) (*DArray, error) {
	if !sameInts(d.layout.shape, other.layout.shape) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", d.layout.shape, other.layout.shape)
	}
	if !sameInts(d.layout.blocks, other.layout.blocks) {
		return nil, fmt.Errorf("block mismatch: %v vs %v", d.layout.blocks, other.layout.blocks)
	}
	out := &DArray{s: d.s, layout: d.layout, parts: make([]*scheduler.Handle, len(d.parts))}
	callable := func(ctx context.Context, args []interface{}) (interface{}, error) {
		left, err := asArray(args[0])
		if err != nil {
			return nil, err
		}
		right, err := asArray(args[1])
		if err != nil {
			return nil, err
		}
		zipped := &Array{Shape: append([]int(nil), left.Shape...), Data: make([]float64, len(left.Data))}
		for i := range left.Data {
			zipped.Data[i] = fn(left.Data[i], right.Data[i])
		}
		return zipped, nil
	}
	for block := range d.parts {
		spawned, err := d.s.Spawn(ctx, callable, scheduler.Args(d.parts[block], other.parts[block]), task.WithName("darray-zip"))
		if err != nil {
			return nil, err
		}
		out.parts[block] = spawned
	}
	return out, nil
}

// Reduce folds every element into init with fn in row-major element order
// over the full array, independent of partitioning, so the result is
// deterministic for non-associative fn. The fold runs as a single task that
// reads every block.
func (d *DArray) Reduce(ctx context.Context, init float64, fn func(acc, x float64) float64) (float64, error) {
	l := d.layout
	callable := func(ctx context.Context, args []interface{}) (interface{}, error) {
		size := 1
		for _, dim := range l.shape {
			size *= dim
		}
		full := &Array{Shape: append([]int(nil), l.shape...), Data: make([]float64, size)}
		for block, v := range args {
			part, err := asArray(v)
			if err != nil {
				return nil, err
			}
			l.place(full, block, part)
		}
		acc := init
		for _, x := range full.Data {
			acc = fn(acc, x)
		}
		return acc, nil
	}
	args := make([]interface{}, len(d.parts))
	for i, h := range d.parts {
		args[i] = h
	}
	h, err := d.s.Spawn(ctx, callable, scheduler.Args(args...), task.WithName("darray-reduce"))
	if err != nil {
		return 0, err
	}
	v, err := h.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	acc, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected float64 reduction result, got %T", v)
	}
	return acc, nil
}

func identity(ctx context.Context, args []interface{}) (interface{}, error) {
	return args[0], nil
}

func allocate(ctx context.Context, args []interface{}) (interface{}, error) {
	shape, ok := args[0].([]int)
	if !ok {
		return nil, fmt.Errorf("expected []int shape, got %T", args[0])
	}
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Array{Shape: append([]int(nil), shape...), Data: make([]float64, size)}, nil
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
