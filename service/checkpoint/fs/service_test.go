package fs

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/x"
)

type artifact struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

func TestPersistRestoreTyped(t *testing.T) {
	ctx := context.Background()
	rType := reflect.TypeOf(artifact{})
	svc := New(afs.New(), "mem://localhost/checkpoints",
		WithTypes(x.NewType(rType, x.WithName(rType.String()))))

	token, err := svc.Persist(ctx, "agg/run-1", artifact{Sum: 10.5, Count: 3})
	assert.Nil(t, err)
	assert.NotEmpty(t, token)

	value, ok, err := svc.Restore(ctx, "agg/run-1")
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, artifact{Sum: 10.5, Count: 3}, value)
}

func TestRestoreMiss(t *testing.T) {
	ctx := context.Background()
	svc := New(afs.New(), "mem://localhost/checkpoints")

	_, ok, err := svc.Restore(ctx, "never/written")
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestRestoreGenericWithoutRegistry(t *testing.T) {
	ctx := context.Background()
	svc := New(afs.New(), "mem://localhost/checkpoints")

	_, err := svc.Persist(ctx, "generic", map[string]interface{}{"answer": 42.0})
	assert.Nil(t, err)

	value, ok, err := svc.Restore(ctx, "generic")
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]interface{}{"answer": 42.0}, value)
}
