// Package store is the TTL key-value capability shared by every request.
//
// Values are opaque bytes. Update is the only way to read-modify-write a key:
// implementations guarantee that fn sees the value it replaces, retrying or
// serializing concurrent writers as needed.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps any failure to reach the backing store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when Update loses the compare-and-swap race
	// more times than it is willing to retry.
	ErrConflict = errors.New("store update conflict")
)

// UpdateFunc receives the current value (nil when absent) and returns the
// value to write. Returning a nil value deletes the key; returning an error
// aborts the update without writing.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a key-value store whose entries expire after a TTL.
type Store interface {
	// Get returns nil, nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Update atomically replaces key with the result of fn. fn may be
	// called more than once and must not have side effects.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}
