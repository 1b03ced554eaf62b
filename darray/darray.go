// Package darray layers distributed dense arrays on top of the scheduler:
// an array is partitioned into row-major blocks, each block lives behind a
// task handle, and elementwise operations become per-block tasks the
// controller places near the data.
package darray

import (
	"fmt"

	"github.com/viant/toolbox"
)

// Array is a dense row-major float64 array.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray builds an array, validating that data matches the shape.
func NewArray(shape []int, data []float64) (*Array, error) {
	size, err := sizeOf(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, size, len(data))
	}
	return &Array{Shape: append([]int(nil), shape...), Data: data}, nil
}

// FromValues builds an array from loosely typed numeric values (ints,
// floats, numeric strings), coercing each element.
func FromValues(shape []int, values []interface{}) (*Array, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = toolbox.AsFloat(v)
	}
	return NewArray(shape, data)
}

// Size returns the element count.
func (a *Array) Size() int { return len(a.Data) }

// At returns the element at the given indices.
func (a *Array) At(indices ...int) float64 {
	return a.Data[a.offset(indices)]
}

// Set assigns the element at the given indices.
func (a *Array) Set(value float64, indices ...int) {
	a.Data[a.offset(indices)] = value
}

func (a *Array) offset(indices []int) int {
	offset := 0
	for dim, idx := range indices {
		offset = offset*a.Shape[dim] + idx
	}
	return offset
}

func sizeOf(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("shape must have at least one dimension")
	}
	size := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("shape %v has non-positive dimension", shape)
		}
		size *= dim
	}
	return size, nil
}

// layout describes a block partitioning of a shape. Edge blocks are smaller
// when block sizes do not divide the shape evenly.
type layout struct {
	shape  []int
	blocks []int
	grid   []int
}

func newLayout(shape, blocks []int) (*layout, error) {
	if _, err := sizeOf(shape); err != nil {
		return nil, err
	}
	if len(blocks) != len(shape) {
		return nil, fmt.Errorf("block spec rank %d does not match array rank %d", len(blocks), len(shape))
	}
	grid := make([]int, len(shape))
	for dim, b := range blocks {
		if b <= 0 {
			return nil, fmt.Errorf("block size %d in dimension %d is not positive", b, dim)
		}
		grid[dim] = (shape[dim] + b - 1) / b
	}
	return &layout{
		shape:  append([]int(nil), shape...),
		blocks: append([]int(nil), blocks...),
		grid:   grid,
	}, nil
}

func (l *layout) blockCount() int {
	count := 1
	for _, g := range l.grid {
		count *= g
	}
	return count
}

// blockIndex decomposes a flat row-major block number into per-dimension
// block coordinates.
func (l *layout) blockIndex(block int) []int {
	idx := make([]int, len(l.grid))
	for dim := len(l.grid) - 1; dim >= 0; dim-- {
		idx[dim] = block % l.grid[dim]
		block /= l.grid[dim]
	}
	return idx
}

// bounds returns the half-open [lo, hi) extent of a block in each dimension.
func (l *layout) bounds(block int) (lo, hi []int) {
	idx := l.blockIndex(block)
	lo = make([]int, len(idx))
	hi = make([]int, len(idx))
	for dim, i := range idx {
		lo[dim] = i * l.blocks[dim]
		hi[dim] = lo[dim] + l.blocks[dim]
		if hi[dim] > l.shape[dim] {
			hi[dim] = l.shape[dim]
		}
	}
	return lo, hi
}

// extract copies one block out of the full array.
func (l *layout) extract(a *Array, block int) *Array {
	lo, hi := l.bounds(block)
	shape := make([]int, len(lo))
	size := 1
	for dim := range lo {
		shape[dim] = hi[dim] - lo[dim]
		size *= shape[dim]
	}
	out := &Array{Shape: shape, Data: make([]float64, 0, size)}
	l.walk(lo, hi, func(indices []int) {
		out.Data = append(out.Data, a.At(indices...))
	})
	return out
}

// place copies one block back into the full array.
func (l *layout) place(a *Array, block int, part *Array) {
	lo, hi := l.bounds(block)
	i := 0
	l.walk(lo, hi, func(indices []int) {
		a.Set(part.Data[i], indices...)
		i++
	})
}

// walk visits every element position of the [lo, hi) extent in row-major
// order.
func (l *layout) walk(lo, hi []int, fn func(indices []int)) {
	indices := append([]int(nil), lo...)
	for {
		fn(indices)
		dim := len(indices) - 1
		for dim >= 0 {
			indices[dim]++
			if indices[dim] < hi[dim] {
				break
			}
			indices[dim] = lo[dim]
			dim--
		}
		if dim < 0 {
			return
		}
	}
}
