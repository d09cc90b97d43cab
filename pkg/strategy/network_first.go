package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// NetworkFirst always tries the origin and falls back to the current
// generation when the origin cannot be reached.
type NetworkFirst struct {
	gen       cache.Generation
	fetcher   Fetcher
	writeBack *WriteBack
	logger    zerolog.Logger
}

// NewNetworkFirst creates a network-first strategy.
func NewNetworkFirst(gen cache.Generation, fetcher Fetcher, writeBack *WriteBack) *NetworkFirst {
	return &NetworkFirst{
		gen:       gen,
		fetcher:   fetcher,
		writeBack: writeBack,
		logger:    log.With().Str("component", "strategy").Str("strategy", "network_first").Logger(),
	}
}

// Resolve implements Strategy.
func (s *NetworkFirst) Resolve(ctx context.Context, req *request.Request) *http.Response {
	resp, err := s.fetcher.Fetch(ctx, req)
	if err == nil {
		if !s.writeBack.Eligible(req, resp.StatusCode) {
			resolutionsTotal.WithLabelValues("network_first", sourceNetwork).Inc()
			return resp
		}
		var entry *cache.Entry
		entry, err = cache.ResponseToEntry(resp)
		if err == nil {
			s.writeBack.Schedule(req, entry)
			resolutionsTotal.WithLabelValues("network_first", sourceNetwork).Inc()
			return resp
		}
		// A body cut short counts as a network failure.
		resp.Body.Close()
	}

	s.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Fetch failed, falling back to cache")

	if !req.Cacheable() {
		resolutionsTotal.WithLabelValues("network_first", sourceError).Inc()
		return NetworkErrorResponse()
	}

	id := req.Identity()
	entry, err := s.gen.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("identity", id.String()).Msg("Cache lookup failed")
		}
		resolutionsTotal.WithLabelValues("network_first", sourceError).Inc()
		return NetworkErrorResponse()
	}

	s.logger.Debug().Str("identity", id.String()).Msg("Served from cache fallback")
	resolutionsTotal.WithLabelValues("network_first", sourceFallback).Inc()
	return cache.EntryToResponse(entry)
}
