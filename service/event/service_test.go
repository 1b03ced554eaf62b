package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type taskMoved struct {
	TaskID string
	State  string
}

func TestPublisherOfIsPerType(t *testing.T) {
	s := New()
	a := PublisherOf[taskMoved](s)
	b := PublisherOf[taskMoved](s)
	assert.Same(t, a, b)
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	publisher := PublisherOf[taskMoved](s)
	evt := NewEvent(&Context{TaskID: "t1", EventType: "ready"}, taskMoved{TaskID: "t1", State: "ready"})
	assert.Nil(t, publisher.Publish(ctx, evt))

	received, err := publisher.Consume(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "t1", received.Data.TaskID)
	assert.Equal(t, "ready", received.Data.State)
	assert.False(t, received.CreatedAt.IsZero())
}

func TestListenerDrainsEvents(t *testing.T) {
	s := New()
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	SetListenerOf(s, func(e *Event[taskMoved]) {
		mu.Lock()
		seen = append(seen, e.Data.TaskID)
		mu.Unlock()
	})

	publisher := PublisherOf[taskMoved](s)
	for _, id := range []string{"t1", "t2", "t3"} {
		assert.Nil(t, publisher.Publish(ctx, NewEvent(&Context{TaskID: id}, taskMoved{TaskID: id})))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"t1", "t2", "t3"}, seen)
	mu.Unlock()
}
