// Package storage defines the durable key-value capability the progress engine
// persists through, plus an in-process implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key has never been written
	ErrNotFound = errors.New("key not found")
	// ErrVersionConflict is returned when a Put expected a version other than the stored one
	ErrVersionConflict = errors.New("version conflict")
)

// AnyVersion disables the version check on Put
const AnyVersion int64 = -1

// Entry is a stored value together with its write metadata
type Entry struct {
	Key       string
	Value     []byte
	Version   int64  // Incremented on every write, 0 means absent
	Origin    string // Identifier of the writer that produced this version
	UpdatedAt time.Time
}

// KV is a durable key-value store with change notification.
type KV interface {
	// Get returns the current entry or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// Put replaces the value when the stored version equals expectVersion
	// (0 for a key that does not exist yet, AnyVersion to skip the check)
	// and returns the new version.
	Put(ctx context.Context, key string, value []byte, expectVersion int64, origin string) (int64, error)
	// Watch calls fn for every write to key made after the call.
	// The returned func stops the subscription.
	Watch(key string, fn func(Entry)) (unwatch func())
}
