package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolution(t *testing.T) {
	p := &Policy{DefaultDeadline: time.Minute, DefaultPriority: 3}

	assert.Equal(t, time.Minute, p.Deadline(0))
	assert.Equal(t, time.Second, p.Deadline(time.Second))
	assert.Equal(t, 3, p.Priority(0))
	assert.Equal(t, 7, p.Priority(7))

	var nilPolicy *Policy
	assert.Equal(t, time.Duration(0), nilPolicy.Deadline(0))
	assert.Equal(t, 0, nilPolicy.Priority(0))
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	p := &Policy{DefaultPriority: 1}
	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
}
