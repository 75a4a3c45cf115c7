package storage

import "errors"

var (
	// ErrNotFound indicates no value exists for the given key.
	ErrNotFound = errors.New("storage: not found")

	// ErrEmptyKey indicates an attempt to store or look up an empty key.
	ErrEmptyKey = errors.New("storage: key is empty")

	// ErrUnknownBackend indicates an unsupported store backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrCorrupt indicates a stored record could not be decoded.
	ErrCorrupt = errors.New("storage: corrupt record")

	// ErrClosed indicates use of a store after Close.
	ErrClosed = errors.New("storage: store closed")
)
