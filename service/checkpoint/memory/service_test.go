package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistRestore(t *testing.T) {
	ctx := context.Background()
	svc := New()

	_, ok, err := svc.Restore(ctx, "missing")
	assert.Nil(t, err)
	assert.False(t, ok)

	token, err := svc.Persist(ctx, "k1", 42)
	assert.Nil(t, err)
	assert.NotEmpty(t, token)

	value, ok, err := svc.Restore(ctx, "k1")
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	// overwrite wins
	_, err = svc.Persist(ctx, "k1", 43)
	assert.Nil(t, err)
	value, _, _ = svc.Restore(ctx, "k1")
	assert.Equal(t, 43, value)
}
