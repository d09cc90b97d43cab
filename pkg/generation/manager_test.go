package generation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
)

func newStore(t *testing.T, names ...string) *cache.MemoryStore {
	t.Helper()
	store := cache.NewMemoryStore()
	for _, name := range names {
		if _, err := store.Open(context.Background(), name); err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
	}
	return store
}

func listGenerations(t *testing.T, store cache.Store) []string {
	t.Helper()
	names, err := store.ListGenerations(context.Background())
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	return names
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		existing    []string
		current     string
		wantDeleted []string
		wantLeft    []string
	}{
		{
			name:        "three versions",
			existing:    []string{"v1", "v2", "v3"},
			current:     "v3",
			wantDeleted: []string{"v1", "v2"},
			wantLeft:    []string{"v3"},
		},
		{
			name:     "only current",
			existing: []string{"v3"},
			current:  "v3",
			wantLeft: []string{"v3"},
		},
		{
			name:        "real cache names",
			existing:    []string{"SW Demo_cache_0.0.14", "SW Demo_cache_0.0.15", "SW Demo_cache_0.1.0"},
			current:     "SW Demo_cache_0.0.15",
			wantDeleted: []string{"SW Demo_cache_0.0.14", "SW Demo_cache_0.1.0"},
			wantLeft:    []string{"SW Demo_cache_0.0.15"},
		},
		{
			name:        "current absent",
			existing:    []string{"v1"},
			current:     "v2",
			wantDeleted: []string{"v1"},
			wantLeft:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, tt.existing...)
			deleted, err := NewManager(store).Reconcile(context.Background(), tt.current)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if len(deleted) != len(tt.wantDeleted) || (len(deleted) > 0 && !reflect.DeepEqual(deleted, tt.wantDeleted)) {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}
			if left := listGenerations(t, store); !reflect.DeepEqual(left, tt.wantLeft) {
				t.Errorf("generations = %v, want %v", left, tt.wantLeft)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newStore(t, "v1", "v2", "v3")
	m := NewManager(store)

	if _, err := m.Reconcile(context.Background(), "v3"); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	deleted, err := m.Reconcile(context.Background(), "v3")
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("second run deleted %v, want nothing", deleted)
	}
	if left := listGenerations(t, store); !reflect.DeepEqual(left, []string{"v3"}) {
		t.Errorf("generations = %v, want [v3]", left)
	}
}

func TestReconcile_KeepsCurrentEntries(t *testing.T) {
	store := newStore(t, "v1")
	gen, _ := store.Open(context.Background(), "v2")
	id, _ := cache.NewIdentity("GET", "https://example.com/index.html")
	if err := gen.Put(context.Background(), id, &cache.Entry{StatusCode: 200, Data: []byte("ok")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := NewManager(store).Reconcile(context.Background(), "v2"); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if _, err := gen.Get(context.Background(), id); err != nil {
		t.Errorf("current generation entry lost: %v", err)
	}
}

// flakyStore fails deletion of selected generations.
type flakyStore struct {
	*cache.MemoryStore
	failDelete map[string]bool
	listErr    error
}

func (s *flakyStore) ListGenerations(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListGenerations(ctx)
}

func (s *flakyStore) DeleteGeneration(ctx context.Context, name string) error {
	if s.failDelete[name] {
		return cache.ErrStorageUnavailable
	}
	return s.MemoryStore.DeleteGeneration(ctx, name)
}

func TestReconcile_ContinuesPastFailures(t *testing.T) {
	store := &flakyStore{
		MemoryStore: newStore(t, "v1", "v2", "v3", "v4"),
		failDelete:  map[string]bool{"v2": true},
	}

	deleted, err := NewManager(store).Reconcile(context.Background(), "v4")
	if !errors.Is(err, cache.ErrStorageUnavailable) {
		t.Errorf("Reconcile() error = %v, want ErrStorageUnavailable", err)
	}
	if !reflect.DeepEqual(deleted, []string{"v1", "v3"}) {
		t.Errorf("deleted = %v, want [v1 v3]", deleted)
	}
	if left := listGenerations(t, store); !reflect.DeepEqual(left, []string{"v2", "v4"}) {
		t.Errorf("generations = %v, want [v2 v4]", left)
	}
}

func TestReconcile_ListFailure(t *testing.T) {
	store := &flakyStore{
		MemoryStore: newStore(t, "v1", "v2"),
		listErr:     cache.ErrStorageUnavailable,
	}

	deleted, err := NewManager(store).Reconcile(context.Background(), "v2")
	if !errors.Is(err, cache.ErrStorageUnavailable) {
		t.Errorf("Reconcile() error = %v, want ErrStorageUnavailable", err)
	}
	if deleted != nil {
		t.Errorf("deleted = %v, want nil", deleted)
	}
}
