package filedata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistMaterializeRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := New(nil)

	url := "mem://localhost/chunks/c1.json"
	require.NoError(t, svc.Persist(ctx, map[string]interface{}{"rows": 4.0}, url))

	value, err := svc.Materialize(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"rows": 4.0}, value)
}

func TestMaterializeMissing(t *testing.T) {
	svc := New(nil)
	_, err := svc.Materialize(context.Background(), "mem://localhost/chunks/absent.json")
	assert.Error(t, err)
}
