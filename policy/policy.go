// Package policy provides optional per-run execution settings attached to a
// context. A nil *Policy keeps default behaviour, making the mechanism
// zero-cost for callers that never set one.
package policy

import (
	"context"
	"time"
)

// Policy holds run-scoped spawn defaults.
//
//   - DefaultDeadline applies to spawned tasks that declare no deadline of
//     their own (zero disables).
//   - DefaultPriority applies to spawned tasks with priority 0.
type Policy struct {
	DefaultDeadline time.Duration
	DefaultPriority int
}

// Deadline resolves the effective deadline for a task-declared value.
func (p *Policy) Deadline(declared time.Duration) time.Duration {
	if declared > 0 || p == nil {
		return declared
	}
	return p.DefaultDeadline
}

// Priority resolves the effective priority for a task-declared value.
func (p *Policy) Priority(declared int) int {
	if declared != 0 || p == nil {
		return declared
	}
	return p.DefaultPriority
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds the policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
