// Package cache provides generation-scoped response storage.
//
// A Store holds named generations. Each generation maps a request Identity
// (method plus normalized URL) to an immutable Entry snapshot of a response.
// Exactly one generation belongs to the running build; older ones are
// removed during activation by the generation manager.
//
// Features:
//
// - Deterministic identity derivation (sorted query, lower-case host)
// - Last-write-wins puts, safe for concurrent readers and writers
// - In-memory backend for single-process deployments and tests
// - Redis backend with zstd-compressed bodies and transactional writes
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create store
//	store, err := cache.NewRedisStore(redisClient, "")
//	if err != nil {
//		return err
//	}
//
//	// Open the generation of the running build
//	gen, err := store.Open(ctx, app.CacheName())
//	if err != nil {
//		return err
//	}
//
//	// Get from cache
//	id, _ := cache.NewIdentity("GET", "https://example.com/style/style.css")
//	entry, err := gen.Get(ctx, id)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from origin
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry (body is restored for the caller)
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	// Store in cache
//	if err := gen.Put(ctx, id, entry); err != nil {
//		return err
//	}
//
//	// Serve a cached entry
//	resp := cache.EntryToResponse(entry)
//
// # Metrics
//
// The stores export Prometheus metrics:
//
//   - swcache_cache_hits_total{backend} - Cache hits
//   - swcache_cache_misses_total{backend} - Cache misses
//   - swcache_cache_writes_total{backend} - Entries written
//   - swcache_cache_written_bytes_total{backend} - Body bytes written
//   - swcache_generations_deleted_total{backend} - Generations removed
//   - swcache_cache_errors_total{backend,operation} - Cache operation errors
package cache
