// Command swcache-proxy is a caching reverse proxy in front of a static
// origin. It prewarms the current cache generation at startup, drops older
// generations, then serves assets cache-first and everything else
// network-first.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/config"
	"github.com/Sternrassler/swcache-proxy/pkg/fetch"
	"github.com/Sternrassler/swcache-proxy/pkg/generation"
	"github.com/Sternrassler/swcache-proxy/pkg/lifecycle"
	"github.com/Sternrassler/swcache-proxy/pkg/logging"
	"github.com/Sternrassler/swcache-proxy/pkg/metrics"
	"github.com/Sternrassler/swcache-proxy/pkg/prewarm"
	"github.com/Sternrassler/swcache-proxy/pkg/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "swcache-proxy: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("swcache-proxy stopped")
	}
}

// pinger reports whether the cache backend is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// backend is an opened cache store with its reachability check and cleanup.
type backend struct {
	store cache.Store
	ping  pinger
	close func()
}

func openStore(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Store != config.StoreRedis {
		s := cache.NewMemoryStore()
		return &backend{store: s, ping: s, close: func() {}}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	s, err := cache.NewRedisStore(redisClient, cfg.RedisPrefix)
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	return &backend{
		store: s,
		ping:  s,
		close: func() {
			s.Close()
			redisClient.Close()
		},
	}, nil
}

func buildLifecycle(cfg config.Config, store cache.Store) (*lifecycle.Lifecycle, error) {
	app := cfg.App()

	fetchCfg := fetch.DefaultConfig(app.UserAgent())
	fetchCfg.Timeout = cfg.FetchTimeout
	fetchCfg.Retry.MaxAttempts = cfg.MaxAttempts
	client, err := fetch.New(fetchCfg)
	if err != nil {
		return nil, fmt.Errorf("create fetch client: %w", err)
	}

	origin := cfg.OriginURL()
	logger := logging.NewLogger("lifecycle")

	return lifecycle.New(lifecycle.Options{
		App:      app,
		Origin:   origin,
		Manifest: cfg.Assets,
		Store:    store,
		Fetcher:  client,
		Prewarmer: prewarm.New(client, origin, prewarm.Config{
			MaxConcurrency: cfg.PrewarmConcurrency,
			Timeout:        cfg.PrewarmTimeout,
		}),
		Reconciler: generation.NewManager(store),
		Claimer: lifecycle.ClaimerFunc(func(context.Context) error {
			logger.Info().Str("generation", app.CacheName()).Msg("Claimed clients, routing traffic through cache")
			return nil
		}),
		WriteBack: strategy.WriteBackConfig{
			Ignore:  cfg.Ignore,
			Timeout: cfg.WriteBackTimeout,
		},
	}), nil
}

func newMux(lc *lifecycle.Lifecycle, p pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(lc, p))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", lc)
	return mux
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger("main")

	b, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	lc, err := buildLifecycle(cfg, b.store)
	if err != nil {
		return err
	}

	logger.Info().
		Str("origin", cfg.Origin).
		Str("store", cfg.Store).
		Str("generation", cfg.App().CacheName()).
		Int("assets", len(cfg.Assets)).
		Msg("Installing")

	if err := lc.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := lc.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newMux(lc, b.ping),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Msg("Starting swcache-proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	return shutdown(srv, lc, cfg.ShutdownTimeout, logger)
}

func shutdown(srv *http.Server, lc *lifecycle.Lifecycle, timeout time.Duration, logger zerolog.Logger) error {
	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	lc.Flush()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(lc *lifecycle.Lifecycle, p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if state := lc.State(); state != lifecycle.StateServing {
			http.Error(w, "NOT READY: lifecycle "+state.String(), http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			http.Error(w, "NOT READY: cache unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "READY")
	}
}
