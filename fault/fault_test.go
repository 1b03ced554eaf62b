package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorChains(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "scheduling",
			err:      &SchedulingError{TaskID: "t1", Reason: "scope admits no worker"},
			sentinel: ErrScheduling,
		},
		{
			name:     "timeout",
			err:      &TimeoutError{TaskID: "t1", Worker: 2},
			sentinel: ErrTimeout,
		},
		{
			name:     "lost data",
			err:      &LostDataError{ChunkID: "c1", Worker: 0},
			sentinel: ErrLostData,
		},
		{
			name:     "cycle",
			err:      &CycleError{Path: []string{"a", "b", "a"}},
			sentinel: ErrCycle,
		},
		{
			name:     "execution wraps cause",
			err:      &ExecutionError{TaskID: "t1", Worker: 1, Err: boom},
			sentinel: boom,
		},
		{
			name:     "dependency failure wraps cause",
			err:      &DependencyFailure{TaskID: "t2", Origin: "t1", Cause: boom},
			sentinel: boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.err, tc.sentinel))
			assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", tc.err), tc.sentinel))
		})
	}
}

func TestOrigin(t *testing.T) {
	boom := &ExecutionError{TaskID: "t1", Worker: 0, Err: errors.New("boom")}
	direct := &DependencyFailure{TaskID: "t2", Origin: "t1", Cause: boom}
	transitive := &DependencyFailure{TaskID: "t3", Origin: "t1", Cause: direct}

	assert.Equal(t, "t1", Origin(direct))
	assert.Equal(t, "t1", Origin(transitive))
	assert.Equal(t, "t1", Origin(fmt.Errorf("outer: %w", transitive)))
	assert.Equal(t, "", Origin(boom))
}
