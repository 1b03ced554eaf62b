// Package checkpoint persists completed task results so that a restarted
// scheduler can skip recomputation. Persist/restore failures are reported as
// fault.CheckpointError and are never fatal - the controller logs them and
// recomputes.
package checkpoint

import (
	"context"
)

// Service is the checkpoint collaborator contract.
type Service interface {
	// Persist stores the value under the caller-chosen stable key and
	// returns a validity token.
	Persist(ctx context.Context, key string, value interface{}) (string, error)

	// Restore returns the value stored under key; ok is false on miss.
	Restore(ctx context.Context, key string) (interface{}, bool, error)
}
