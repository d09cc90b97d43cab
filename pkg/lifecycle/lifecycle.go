// Package lifecycle drives the interception layer through installation,
// activation and serving.
//
// Install prewarms the current generation with the asset manifest.
// Activate reclaims stale generations and claims traffic. Only a Serving
// lifecycle resolves requests. Callers order the steps by calling them
// synchronously; illegal transitions return ErrInvalidTransition.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
	"github.com/Sternrassler/swcache-proxy/pkg/router"
	"github.com/Sternrassler/swcache-proxy/pkg/strategy"
	"github.com/Sternrassler/swcache-proxy/pkg/version"
)

var (
	// ErrNotServing is returned by Handle before activation completed.
	ErrNotServing = errors.New("lifecycle not serving")

	// ErrInvalidTransition is returned when a step is called in the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

var (
	lifecycleState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swcache_lifecycle_state",
		Help: "Current lifecycle state (0=idle 1=installing 2=installed 3=activating 4=serving 5=failed)",
	})

	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_installs_total",
		Help: "Total install attempts by result",
	}, []string{"result"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_dispatch_total",
		Help: "Total requests dispatched by classification",
	}, []string{"class"})
)

// State is a lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateServing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateServing:
		return "serving"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Prewarmer fills a generation with the asset manifest.
type Prewarmer interface {
	PutAll(ctx context.Context, gen cache.Generation, paths []string) error
}

// Reconciler deletes every generation other than current.
type Reconciler interface {
	Reconcile(ctx context.Context, current string) ([]string, error)
}

// Claimer takes over traffic once activation is complete.
type Claimer interface {
	Claim(ctx context.Context) error
}

// ClaimerFunc adapts a function to Claimer.
type ClaimerFunc func(ctx context.Context) error

// Claim implements Claimer.
func (f ClaimerFunc) Claim(ctx context.Context) error { return f(ctx) }

// Options holds the collaborators of a Lifecycle.
type Options struct {
	App        version.App
	Origin     *url.URL
	Manifest   []string
	Store      cache.Store
	Fetcher    strategy.Fetcher
	Prewarmer  Prewarmer
	Reconciler Reconciler
	// Claimer is optional.
	Claimer   Claimer
	WriteBack strategy.WriteBackConfig
}

// Lifecycle is the interception state machine.
type Lifecycle struct {
	opts   Options
	logger zerolog.Logger

	mu           sync.RWMutex
	state        State
	gen          cache.Generation
	writeBack    *strategy.WriteBack
	cacheFirst   strategy.Strategy
	networkFirst strategy.Strategy
}

// New creates an idle lifecycle.
func New(opts Options) *Lifecycle {
	l := &Lifecycle{
		opts:   opts,
		logger: log.With().Str("component", "lifecycle").Str("generation", opts.App.CacheName()).Logger(),
	}
	lifecycleState.Set(float64(StateIdle))
	return l
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Generation returns the name of the current generation.
func (l *Lifecycle) Generation() string {
	return l.opts.App.CacheName()
}

// transition moves from one of the allowed states to next.
func (l *Lifecycle) transition(next State, allowed ...State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range allowed {
		if l.state == s {
			l.setState(next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, next)
}

// setState must be called with mu held.
func (l *Lifecycle) setState(s State) {
	prev := l.state
	l.state = s
	lifecycleState.Set(float64(s))
	l.logger.Info().Str("from", prev.String()).Str("to", s.String()).Msg("Lifecycle transition")
}

// Install opens the current generation and prewarms it with the manifest.
// It may be retried after a failure; it never retries on its own.
func (l *Lifecycle) Install(ctx context.Context) error {
	if err := l.transition(StateInstalling, StateIdle, StateFailed); err != nil {
		return err
	}

	gen, err := l.install(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		installsTotal.WithLabelValues("failed").Inc()
		l.logger.Error().Err(err).Msg("Install failed")
		l.setState(StateFailed)
		return err
	}

	installsTotal.WithLabelValues("ok").Inc()
	l.gen = gen
	l.writeBack = strategy.NewWriteBack(gen, l.opts.WriteBack)
	l.cacheFirst = strategy.NewCacheFirst(gen, l.opts.Fetcher, l.writeBack)
	l.networkFirst = strategy.NewNetworkFirst(gen, l.opts.Fetcher, l.writeBack)
	l.setState(StateInstalled)
	return nil
}

func (l *Lifecycle) install(ctx context.Context) (cache.Generation, error) {
	gen, err := l.opts.Store.Open(ctx, l.opts.App.CacheName())
	if err != nil {
		return nil, fmt.Errorf("open generation: %w", err)
	}
	if err := l.opts.Prewarmer.PutAll(ctx, gen, l.opts.Manifest); err != nil {
		return nil, err
	}
	return gen, nil
}

// Activate reclaims stale generations, claims traffic and starts serving.
// Reconciliation and claim failures are logged, not fatal.
func (l *Lifecycle) Activate(ctx context.Context) error {
	if err := l.transition(StateActivating, StateInstalled); err != nil {
		return err
	}

	deleted, err := l.opts.Reconciler.Reconcile(ctx, l.opts.App.CacheName())
	if err != nil {
		l.logger.Warn().Err(err).Msg("Generation reconciliation incomplete")
	}
	if len(deleted) > 0 {
		l.logger.Info().Strs("deleted", deleted).Msg("Stale generations deleted")
	}

	if l.opts.Claimer != nil {
		if err := l.opts.Claimer.Claim(ctx); err != nil {
			l.logger.Warn().Err(err).Msg("Claim failed")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.setState(StateServing)
	return nil
}

// Handle classifies req and resolves it with the matching strategy.
func (l *Lifecycle) Handle(ctx context.Context, req *request.Request) (*http.Response, error) {
	l.mu.RLock()
	state := l.state
	cacheFirst, networkFirst := l.cacheFirst, l.networkFirst
	l.mu.RUnlock()

	if state != StateServing {
		return nil, fmt.Errorf("%w (state %s)", ErrNotServing, state)
	}

	class := router.Classify(req)
	dispatchTotal.WithLabelValues(string(class)).Inc()
	if class == router.PreferCache {
		return cacheFirst.Resolve(ctx, req), nil
	}
	return networkFirst.Resolve(ctx, req), nil
}

// Flush waits for pending cache write-backs.
func (l *Lifecycle) Flush() {
	l.mu.RLock()
	wb := l.writeBack
	l.mu.RUnlock()
	if wb != nil {
		wb.Flush()
	}
}
