// Package kv provides the persistent key-value slots the chat history is kept in.
// A slot is a named value that is read and replaced as a whole.
package kv

import (
	"errors"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// ErrNotFound is returned by Get when the key has never been written
var ErrNotFound = errors.New("kv: key not found")

// Store is a persistent key-value store
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(key string, value []byte) error

	// Close releases the underlying resources.
	Close() error

	// Location returns the file that changes when key is written.
	Location(key string) string
}

// Open opens the store for the given backend.
// For the file backend path is a directory; for bolt and sqlite it is the database file.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(nil, path)
	case BackendBolt:
		return OpenBolt(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (expected %s, %s or %s)", backend, BackendFile, BackendBolt, BackendSQLite)
	}
}
