package datastore

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is returned when the backing store cannot be
// reached. Callers may retry with backoff; no partial state is visible
// to other callers during the outage.
var ErrStoreUnavailable = errors.New("datastore unavailable")

// Store is the persistent hash-field contract every entity family is
// kept in. A logical hash is addressed by (table, key); fields within
// it are independent values. All entity state lives here, in-process
// objects are transient projections of it.
type Store interface {
	// HSet sets a single field of the hash at (table, key).
	HSet(ctx context.Context, table, key, field, value string) error

	// HGet reads a single field. The second return is false when the
	// field is absent.
	HGet(ctx context.Context, table, key, field string) (string, bool, error)

	// HGetAll returns every field of the hash. An absent hash yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, table, key string) (map[string]string, error)

	// HDel removes a single field. Deleting an absent field is a no-op.
	HDel(ctx context.Context, table, key, field string) error

	// HKeys returns the field names of the hash.
	HKeys(ctx context.Context, table, key string) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
