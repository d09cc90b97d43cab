package strategy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// DefaultIgnore lists URL fragments of development tooling whose responses
// are never cached.
var DefaultIgnore = []string{"chrome-extension", "fiveserver"}

var (
	writeBackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_writeback_total",
		Help: "Total cache write-backs by result",
	}, []string{"result"})

	writeBackPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swcache_writeback_pending",
		Help: "Number of cache write-backs in flight",
	})
)

// WriteBackConfig configures a WriteBack.
type WriteBackConfig struct {
	// Ignore lists URL fragments that are never written back.
	Ignore []string

	// Timeout bounds a single cache write.
	Timeout time.Duration

	// OnWrite, if set, is called after every completed write.
	OnWrite func(id cache.Identity, err error)
}

// DefaultWriteBackConfig returns the default write-back configuration.
func DefaultWriteBackConfig() WriteBackConfig {
	return WriteBackConfig{
		Ignore:  DefaultIgnore,
		Timeout: 5 * time.Second,
	}
}

// WriteBack stores fetched responses in a generation in the background.
// Write failures are logged and counted, never returned to the request.
type WriteBack struct {
	gen    cache.Generation
	config WriteBackConfig
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewWriteBack creates a write-back into gen.
func NewWriteBack(gen cache.Generation, config WriteBackConfig) *WriteBack {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &WriteBack{
		gen:    gen,
		config: config,
		logger: log.With().Str("component", "writeback").Str("generation", gen.Name()).Logger(),
	}
}

// Eligible reports whether a response with the given status to req may be
// written back.
func (w *WriteBack) Eligible(req *request.Request, status int) bool {
	return req.Cacheable() &&
		!req.Matches(w.config.Ignore) &&
		status >= http.StatusOK && status < http.StatusMultipleChoices
}

// Schedule writes entry under the identity of req unless the pair is not
// eligible. It returns immediately; the write runs in its own goroutine
// with a context detached from the request.
func (w *WriteBack) Schedule(req *request.Request, entry *cache.Entry) bool {
	if !w.Eligible(req, entry.StatusCode) {
		writeBackTotal.WithLabelValues("skipped").Inc()
		return false
	}

	id := req.Identity()
	w.wg.Add(1)
	writeBackPending.Inc()
	go func() {
		defer w.wg.Done()
		defer writeBackPending.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
		defer cancel()

		err := w.gen.Put(ctx, id, entry)
		if err != nil {
			writeBackTotal.WithLabelValues("failed").Inc()
			w.logger.Warn().Err(err).Str("identity", id.String()).Msg("Cache write-back failed")
		} else {
			writeBackTotal.WithLabelValues("ok").Inc()
			w.logger.Debug().Str("identity", id.String()).Int("bytes", entry.Size()).Msg("Cache write-back complete")
		}

		if w.config.OnWrite != nil {
			w.config.OnWrite(id, err)
		}
	}()
	return true
}

// hold keeps Flush waiting until the returned release is called. Fetches
// that may still schedule a write take a hold first, so Flush cannot return
// between the fetch finishing and its write being scheduled.
func (w *WriteBack) hold() (release func()) {
	w.wg.Add(1)
	var once sync.Once
	return func() { once.Do(w.wg.Done) }
}

// Flush blocks until every scheduled write, and every fetch that may still
// schedule one, has finished.
func (w *WriteBack) Flush() {
	w.wg.Wait()
}
