package cache

import (
	"context"
	"sort"
	"sync"
)

const backendMemory = "memory"

// MemoryStore keeps generations in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[string]*memoryGeneration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[string]*memoryGeneration),
	}
}

// Open returns the named generation, creating it if absent.
func (s *MemoryStore) Open(ctx context.Context, generation string) (Generation, error) {
	s.mu.RLock()
	g, ok := s.generations[generation]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check, another caller may have created it meanwhile.
	if g, ok := s.generations[generation]; ok {
		return g, nil
	}
	g = &memoryGeneration{
		store:   s,
		name:    generation,
		entries: make(map[Identity]*Entry),
	}
	s.generations[generation] = g
	return g, nil
}

// ListGenerations returns all generation names, sorted.
func (s *MemoryStore) ListGenerations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteGeneration removes a generation. Unknown names are ignored.
func (s *MemoryStore) DeleteGeneration(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.generations[name]; ok {
		delete(s.generations, name)
		// Handles may outlive the deletion; a later Put through one must not
		// bring the old entries back.
		g.mu.Lock()
		g.entries = make(map[Identity]*Entry)
		g.mu.Unlock()
		GenerationsDeleted.WithLabelValues(backendMemory).Inc()
	}
	return nil
}

// register re-attaches g after it was deleted while a handle was still held.
func (s *MemoryStore) register(g *memoryGeneration) {
	s.mu.RLock()
	_, ok := s.generations[g.name]
	s.mu.RUnlock()
	if ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[g.name]; !ok {
		s.generations[g.name] = g
	}
}

type memoryGeneration struct {
	store *MemoryStore
	name  string

	mu      sync.RWMutex
	entries map[Identity]*Entry
}

func (g *memoryGeneration) Name() string {
	return g.name
}

func (g *memoryGeneration) Get(ctx context.Context, id Identity) (*Entry, error) {
	g.mu.RLock()
	entry, ok := g.entries[id]
	g.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(backendMemory).Inc()
	return entry.clone(), nil
}

func (g *memoryGeneration) Put(ctx context.Context, id Identity, entry *Entry) error {
	if entry == nil {
		return errNilEntry
	}

	stored := entry.clone()
	g.mu.Lock()
	g.entries[id] = stored
	g.mu.Unlock()

	// Generations are created lazily on write, like the Redis backend.
	g.store.register(g)

	CacheWrites.WithLabelValues(backendMemory).Inc()
	CacheWrittenBytes.WithLabelValues(backendMemory).Add(float64(stored.Size()))
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
