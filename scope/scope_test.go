package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeAdmits(t *testing.T) {
	processors := []Processor{
		{Worker: 0, Kind: "cpu"},
		{Worker: 1, Kind: "cpu", Tags: []string{"fast-io"}},
		{Worker: 2, Kind: "gpu", Tags: []string{"fast-io", "large-mem"}},
	}

	tests := []struct {
		name     string
		scope    Scope
		expected []int
	}{
		{
			name:     "any admits all",
			scope:    Any(),
			expected: []int{0, 1, 2},
		},
		{
			name:     "zero value admits all",
			scope:    Scope{},
			expected: []int{0, 1, 2},
		},
		{
			name:     "single worker",
			scope:    Worker(1),
			expected: []int{1},
		},
		{
			name:     "kind",
			scope:    Kind("cpu"),
			expected: []int{0, 1},
		},
		{
			name:     "single tag",
			scope:    Tagged("fast-io"),
			expected: []int{1, 2},
		},
		{
			name:     "all tags required",
			scope:    Tagged("fast-io", "large-mem"),
			expected: []int{2},
		},
		{
			name:     "intersect tightens",
			scope:    Intersect(Kind("cpu"), Tagged("fast-io")),
			expected: []int{1},
		},
		{
			name:     "union widens",
			scope:    Union(Worker(0), Kind("gpu")),
			expected: []int{0, 2},
		},
		{
			name:     "intersect with any is identity",
			scope:    Intersect(Any(), Worker(2)),
			expected: []int{2},
		},
		{
			name:     "infeasible intersection",
			scope:    Intersect(Worker(0), Kind("gpu")),
			expected: nil,
		},
		{
			name:     "unknown worker",
			scope:    Worker(99),
			expected: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []int
			for _, p := range tc.scope.Candidates(processors) {
				got = append(got, p.Worker)
			}
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, len(tc.expected) == 0, tc.scope.IsEmpty(processors))
		})
	}
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "any", Any().String())
	assert.Equal(t, "worker=3", Worker(3).String())
	assert.Equal(t, "(kind=cpu & tags=fast-io)", Intersect(Kind("cpu"), Tagged("fast-io")).String())
	assert.Equal(t, "(worker=0 | worker=1)", Union(Worker(0), Worker(1)).String())
}
