package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// CacheFirst serves from the current generation and only goes to the
// network on a miss. Hits are never revalidated: staleness is resolved by
// a generation bump.
type CacheFirst struct {
	gen       cache.Generation
	fetcher   Fetcher
	writeBack *WriteBack
	group     singleflight.Group
	logger    zerolog.Logger
}

// NewCacheFirst creates a cache-first strategy.
func NewCacheFirst(gen cache.Generation, fetcher Fetcher, writeBack *WriteBack) *CacheFirst {
	return &CacheFirst{
		gen:       gen,
		fetcher:   fetcher,
		writeBack: writeBack,
		logger:    log.With().Str("component", "strategy").Str("strategy", "cache_first").Logger(),
	}
}

// Resolve implements Strategy.
func (s *CacheFirst) Resolve(ctx context.Context, req *request.Request) *http.Response {
	if !req.Cacheable() {
		return s.passThrough(ctx, req)
	}

	id := req.Identity()
	entry, err := s.gen.Get(ctx, id)
	switch {
	case err == nil:
		resolutionsTotal.WithLabelValues("cache_first", sourceCache).Inc()
		s.logger.Debug().Str("identity", id.String()).Msg("Cache hit")
		return cache.EntryToResponse(entry)
	case errors.Is(err, cache.ErrCacheMiss):
		s.logger.Debug().Str("identity", id.String()).Msg("Cache miss")
	default:
		s.logger.Warn().Err(err).Str("identity", id.String()).Msg("Cache lookup failed, fetching")
	}

	// Concurrent misses for one identity share a single origin fetch. The
	// shared fetch is detached from any single caller's cancellation and
	// holds the write-back open until it completes.
	release := s.writeBack.hold()
	ch := s.group.DoChan(id.String(), func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), req)
	})

	select {
	case res := <-ch:
		release()
		if res.Err != nil {
			resolutionsTotal.WithLabelValues("cache_first", sourceError).Inc()
			return NetworkErrorResponse()
		}
		resolutionsTotal.WithLabelValues("cache_first", sourceNetwork).Inc()
		return cache.EntryToResponse(res.Val.(*cache.Entry))
	case <-ctx.Done():
		go func() {
			<-ch
			release()
		}()
		resolutionsTotal.WithLabelValues("cache_first", sourceError).Inc()
		return NetworkErrorResponse()
	}
}

// fetch retrieves req, buffers the response and schedules its write-back.
func (s *CacheFirst) fetch(ctx context.Context, req *request.Request) (*cache.Entry, error) {
	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Fetch failed on cache miss")
		return nil, err
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Reading origin response failed")
		return nil, err
	}

	s.writeBack.Schedule(req, entry)
	return entry, nil
}

// passThrough forwards requests that can never be cached.
func (s *CacheFirst) passThrough(ctx context.Context, req *request.Request) *http.Response {
	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		resolutionsTotal.WithLabelValues("cache_first", sourceError).Inc()
		return NetworkErrorResponse()
	}
	resolutionsTotal.WithLabelValues("cache_first", sourceNetwork).Inc()
	return resp
}
