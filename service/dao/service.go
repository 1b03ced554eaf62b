// Package dao defines the generic record store contract used for task record
// introspection and checkpoint indexes.
package dao

import "context"

// Service is a generic keyed record store.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
