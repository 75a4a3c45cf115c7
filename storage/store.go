package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// KV is an ordered byte key/value store. Values returned by Get and passed
// to ForEach callbacks are owned by the caller.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Put sets the value for key, overwriting any previous value.
	Put(key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// ForEach calls fn for every key starting with prefix, in key order.
	// Iteration stops at the first error returned by fn.
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// Close releases the underlying database.
	Close() error
}

// Backend names a KV implementation.
type Backend string

const (
	BackendBolt    Backend = "bolt"
	BackendBadger  Backend = "badger"
	BackendLevelDB Backend = "leveldb"
	BackendMemory  Backend = "memory"
)

// ParseBackend validates a backend name. The empty string selects bolt.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendBolt, nil
	case BackendBolt, BackendBadger, BackendLevelDB, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Open opens or creates the store for backend at path. Bolt uses path as a
// file; badger and leveldb use it as a directory. The memory backend
// ignores path.
func Open(backend Backend, path string, logger zerolog.Logger) (KV, error) {
	backend, err := ParseBackend(string(backend))
	if err != nil {
		return nil, err
	}
	if backend != BackendMemory {
		if path == "" {
			return nil, ErrInvalidBaseDir
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
	}
	switch backend {
	case BackendBolt:
		return OpenBoltStore(path)
	case BackendBadger:
		return OpenBadgerStore(path)
	case BackendLevelDB:
		return OpenLevelDBStore(path, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func checkKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
