// Package kv provides the durable local slot used by the training store: a
// small key-value interface with a BadgerDB implementation for disk and an
// in-memory implementation for tests and for running without a data
// directory.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Store is a byte-oriented key-value store.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair in a single write, overwriting any
	// existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Open returns a Badger store rooted at dir, or a Memory store when dir is
// empty.
func Open(dir string) (Store, error) {
	if dir == "" {
		return NewMemory(), nil
	}
	return NewBadger(BadgerOptions{Dir: dir})
}
