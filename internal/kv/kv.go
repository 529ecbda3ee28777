// Package kv provides the key/value persistence contract of the merge-gate
// core. Values are stored per logical store name and per namespace, the
// namespace is the repository identity or "global".
// Implementations provide no transactions, atomicity is the responsibility of
// the caller's locking.
package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	// Get returns the value for key. It fails with an error wrapping
	// ErrNotFound when the key is absent.
	Get(ctx context.Context, store, namespace, key string) ([]byte, error)
	Put(ctx context.Context, store, namespace, key string, value []byte) error
	// GetAll returns all entries of the namespace keyed by their key.
	GetAll(ctx context.Context, store, namespace string) (map[string][]byte, error)
}
