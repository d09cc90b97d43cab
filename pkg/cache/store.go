package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested identity was not found in the generation
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrStorageUnavailable indicates the storage backend could not be reached
	ErrStorageUnavailable = errors.New("cache storage unavailable")

	errNilEntry = errors.New("cache entry cannot be nil")
)

// Store is a set of named generations.
type Store interface {
	// Open returns a handle to the named generation, creating it if absent.
	// Open is idempotent.
	Open(ctx context.Context, generation string) (Generation, error)

	// ListGenerations returns the names of all known generations, sorted.
	ListGenerations(ctx context.Context) ([]string, error)

	// DeleteGeneration removes a generation and all of its entries.
	// Deleting an unknown generation is not an error.
	DeleteGeneration(ctx context.Context, name string) error
}

// Generation is a handle to one cache namespace.
// Implementations are safe for concurrent use.
type Generation interface {
	// Name returns the generation name.
	Name() string

	// Get returns the entry stored under id, or ErrCacheMiss.
	Get(ctx context.Context, id Identity) (*Entry, error)

	// Put stores entry under id, replacing any previous entry.
	Put(ctx context.Context, id Identity, entry *Entry) error
}
