package prewarm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// ErrPrewarmFailed matches every *PrewarmError via errors.Is.
var ErrPrewarmFailed = errors.New("prewarm failed")

var (
	prewarmAssetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_prewarm_assets_total",
		Help: "Total manifest assets fetched during prewarm by result",
	}, []string{"result"})

	prewarmDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swcache_prewarm_duration_seconds",
		Help:    "Duration of complete prewarm runs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// PrewarmError lists the manifest entries that could not be fetched.
type PrewarmError struct {
	Generation string
	// Failed holds the identities of failed assets in manifest order.
	Failed []string
	Errs   []error
	Total  int
}

// Error implements the error interface.
func (e *PrewarmError) Error() string {
	return fmt.Sprintf("prewarm %s: %d of %d assets failed: %s",
		e.Generation, len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}

// Unwrap returns the per-asset errors.
func (e *PrewarmError) Unwrap() []error {
	return e.Errs
}

// Is makes errors.Is(err, ErrPrewarmFailed) hold for every PrewarmError.
func (e *PrewarmError) Is(target error) bool {
	return target == ErrPrewarmFailed
}

// Config holds prewarmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel origin fetches.
	MaxConcurrency int
	// Timeout per asset fetch, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns the default prewarm configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 6,
		Timeout:        15 * time.Second,
	}
}

// Fetcher retrieves a request from the origin.
type Fetcher interface {
	Fetch(ctx context.Context, req *request.Request) (*http.Response, error)
}

// Prewarmer fills a generation with a fixed asset manifest.
type Prewarmer struct {
	fetcher Fetcher
	origin  *url.URL
	config  Config
	logger  zerolog.Logger
}

// New creates a prewarmer resolving manifest paths against origin.
func New(fetcher Fetcher, origin *url.URL, config Config) *Prewarmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 6
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Prewarmer{
		fetcher: fetcher,
		origin:  origin,
		config:  config,
		logger:  log.With().Str("component", "prewarm").Logger(),
	}
}

type asset struct {
	id    cache.Identity
	entry *cache.Entry
	err   error
}

// PutAll fetches every path and stores the responses in gen.
//
// Either every asset is stored or none is: when any fetch fails or
// answers a non-2xx status, PutAll returns a *PrewarmError and leaves gen
// untouched.
func (p *Prewarmer) PutAll(ctx context.Context, gen cache.Generation, paths []string) error {
	start := time.Now()
	defer func() {
		prewarmDuration.Observe(time.Since(start).Seconds())
	}()

	p.logger.Info().
		Str("generation", gen.Name()).
		Int("assets", len(paths)).
		Int("concurrency", p.config.MaxConcurrency).
		Msg("Starting prewarm")

	assets := make([]asset, len(paths))

	var g errgroup.Group
	g.SetLimit(p.config.MaxConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			// Failures are collected per asset and never cancel siblings.
			assets[i] = p.fetchAsset(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	perr := &PrewarmError{Generation: gen.Name(), Total: len(paths)}
	for i, a := range assets {
		if a.err == nil {
			prewarmAssetsTotal.WithLabelValues("ok").Inc()
			continue
		}
		prewarmAssetsTotal.WithLabelValues("failed").Inc()
		name := paths[i]
		if !a.id.IsZero() {
			name = a.id.String()
		}
		perr.Failed = append(perr.Failed, name)
		perr.Errs = append(perr.Errs, a.err)
	}
	if len(perr.Failed) > 0 {
		p.logger.Warn().
			Str("generation", gen.Name()).
			Strs("failed", perr.Failed).
			Int("total", len(paths)).
			Msg("Prewarm failed, nothing stored")
		return perr
	}

	for _, a := range assets {
		if err := gen.Put(ctx, a.id, a.entry); err != nil {
			return fmt.Errorf("prewarm %s: store %s: %w", gen.Name(), a.id, err)
		}
	}

	p.logger.Info().
		Str("generation", gen.Name()).
		Int("assets", len(paths)).
		Dur("duration", time.Since(start)).
		Msg("Prewarm complete")

	return nil
}

// fetchAsset fetches one manifest path and converts it to an entry.
func (p *Prewarmer) fetchAsset(ctx context.Context, path string) asset {
	req, err := request.ForPath(p.origin, path)
	if err != nil {
		return asset{err: err}
	}
	a := asset{id: req.Identity()}

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.fetcher.Fetch(fetchCtx, req)
	if err != nil {
		a.err = err
		return a
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		a.err = fmt.Errorf("read %s: %w", a.id, err)
		return a
	}
	if !entry.OK() {
		a.err = fmt.Errorf("%s: unexpected status %d", a.id, entry.StatusCode)
		return a
	}

	p.logger.Debug().
		Str("identity", a.id.String()).
		Int("bytes", entry.Size()).
		Msg("Asset fetched")

	a.entry = entry
	return a
}
