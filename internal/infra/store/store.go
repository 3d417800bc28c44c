// Package store provides durable key/value records for client state.
package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Store is a durable key/value store. Values are opaque bytes.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the store.
	Close() error
}

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string // "file", "sqlite" or "memory"
	Path    string // Directory for "file", database file for "sqlite"
}

// Open opens the backend selected by cfg.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendFile, "":
		return OpenFile(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(cfg.Path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unsupported store backend: %s", cfg.Backend)
	}
}

// validateKey rejects keys that cannot be stored safely by every backend.
func validateKey(key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return errors.Newf("invalid key: %q", key)
	}
	return nil
}
