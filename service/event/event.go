// Package event provides the typed outbound event bus the controller uses to
// emit structured lifecycle events. Consumption (dashboards, graphing) is
// entirely external.
package event

import "time"

// Context identifies the origin of an event.
type Context struct {
	TaskID    string `json:"taskID,omitempty"`
	TaskName  string `json:"taskName,omitempty"`
	Worker    int    `json:"worker,omitempty"`
	EventType string `json:"eventType"`
}

// Event carries a typed payload plus origin metadata.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

// NewEvent creates an event for the given context and payload.
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Data:      data,
	}
}
