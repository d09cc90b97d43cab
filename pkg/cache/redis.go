package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	backendRedis = "redis"

	// DefaultKeyPrefix namespaces all keys written by RedisStore.
	DefaultKeyPrefix = "swcache"
)

// RedisStore keeps each generation in one Redis hash and tracks
// generation names in a registry set.
//
// Keys:
//
//	<prefix>:generations       set of generation names
//	<prefix>:gen:<generation>  hash of identity -> entry
type RedisStore struct {
	redis  *redis.Client
	prefix string
	codec  *codec
}

// NewRedisStore creates a store using the given Redis client.
// An empty prefix selects DefaultKeyPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) (*RedisStore, error) {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		codec:  c,
	}, nil
}

// Open registers the generation and returns a handle to it.
func (s *RedisStore) Open(ctx context.Context, generation string) (Generation, error) {
	if err := s.redis.SAdd(ctx, s.registryKey(), generation).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "open").Inc()
		return nil, fmt.Errorf("%w: redis sadd: %v", ErrStorageUnavailable, err)
	}
	return &redisGeneration{store: s, name: generation}, nil
}

// ListGenerations returns all registered generation names, sorted.
func (s *RedisStore) ListGenerations(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "list").Inc()
		return nil, fmt.Errorf("%w: redis smembers: %v", ErrStorageUnavailable, err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteGeneration removes the generation hash and its registry member
// in one transaction. Unknown names are ignored.
func (s *RedisStore) DeleteGeneration(ctx context.Context, name string) error {
	pipe := s.redis.TxPipeline()
	del := pipe.Del(ctx, s.generationKey(name))
	rem := pipe.SRem(ctx, s.registryKey(), name)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("%w: redis delete generation: %v", ErrStorageUnavailable, err)
	}

	if del.Val() > 0 || rem.Val() > 0 {
		GenerationsDeleted.WithLabelValues(backendRedis).Inc()
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the compression codec. The Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	s.codec.close()
	return nil
}

func (s *RedisStore) registryKey() string {
	return s.prefix + ":generations"
}

func (s *RedisStore) generationKey(name string) string {
	return s.prefix + ":gen:" + name
}

type redisGeneration struct {
	store *RedisStore
	name  string
}

func (g *redisGeneration) Name() string {
	return g.name
}

func (g *redisGeneration) Get(ctx context.Context, id Identity) (*Entry, error) {
	data, err := g.store.redis.HGet(ctx, g.store.generationKey(g.name), id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("%w: redis hget: %v", ErrStorageUnavailable, err)
	}

	entry, err := g.store.codec.unmarshal(data)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, err
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry, nil
}

// Put writes the entry and re-registers the generation in one transaction,
// so a generation always exists once it holds entries.
func (g *redisGeneration) Put(ctx context.Context, id Identity, entry *Entry) error {
	if entry == nil {
		return errNilEntry
	}

	data, err := g.store.codec.marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return err
	}

	pipe := g.store.redis.TxPipeline()
	pipe.HSet(ctx, g.store.generationKey(g.name), id.String(), data)
	pipe.SAdd(ctx, g.store.registryKey(), g.name)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("%w: redis hset: %v", ErrStorageUnavailable, err)
	}

	CacheWrites.WithLabelValues(backendRedis).Inc()
	CacheWrittenBytes.WithLabelValues(backendRedis).Add(float64(entry.Size()))
	return nil
}
