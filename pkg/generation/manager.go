// Package generation reclaims cache generations left behind by earlier
// application versions.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var reconcileDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swcache_generation_deletions_total",
	Help: "Total stale generation deletions by result",
}, []string{"result"})

// Store is the part of cache.Store the manager needs.
type Store interface {
	ListGenerations(ctx context.Context) ([]string, error)
	DeleteGeneration(ctx context.Context, name string) error
}

// Manager deletes every generation except the current one.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

// NewManager creates a generation manager over store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:  store,
		logger: log.With().Str("component", "generation").Logger(),
	}
}

// Reconcile deletes all generations other than current and returns the
// names it deleted. A failed deletion does not stop the others; all
// failures are returned joined. current itself is never touched.
func (m *Manager) Reconcile(ctx context.Context, current string) ([]string, error) {
	names, err := m.store.ListGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}

	var deleted []string
	var errs []error
	for _, name := range names {
		if name == current {
			continue
		}
		if err := m.store.DeleteGeneration(ctx, name); err != nil {
			reconcileDeletions.WithLabelValues("failed").Inc()
			m.logger.Warn().Err(err).Str("generation", name).Msg("Failed to delete stale generation")
			errs = append(errs, fmt.Errorf("delete generation %q: %w", name, err))
			continue
		}
		reconcileDeletions.WithLabelValues("ok").Inc()
		deleted = append(deleted, name)
	}

	m.logger.Info().
		Str("current", current).
		Strs("deleted", deleted).
		Int("failed", len(errs)).
		Msg("Generations reconciled")

	return deleted, errors.Join(errs...)
}
