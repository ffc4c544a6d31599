// Package kv provides the generic key-value store backing all of Steeple's
// persistent state: admin records, password-reset requests, identity accounts
// and sessions, and the prefix-scoped dashboard collections. Keys are plain
// strings addressed exactly or by prefix; values are JSON documents.
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Entry is a single key/value pair returned by prefix scans.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Store is the persistence contract shared by all backends. Operations are
// atomic per key; there are no cross-key transactions, and concurrent writers
// to the same key race with last-write-wins semantics.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set stores value (marshaled to JSON) at key, overwriting any
	// existing value.
	Set(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// GetByPrefix returns all entries whose key starts with prefix,
	// ordered by key.
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)

	// CountPrefix returns the number of keys starting with prefix.
	CountPrefix(ctx context.Context, prefix string) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// GetJSON loads the value at key and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
