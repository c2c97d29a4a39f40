package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// RedisStore is the shared snapshot tier backed by Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a snapshot store with a Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(tierRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	// Numbers stay json.Number so ids round-trip exactly.
	var entry Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry is second-granular; the entry's own TTL is authoritative.
	if entry.IsExpired(time.Now()) {
		_ = s.Delete(ctx, key)
		CacheEvictions.WithLabelValues(tierRedis).Inc()
		CacheMisses.WithLabelValues(tierRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(tierRedis).Inc()
	return &entry, nil
}

// Set stores a cache entry. The Redis key expires with the entry.
func (s *RedisStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	var ttl time.Duration
	if entry.TTL > 0 {
		ttl = entry.Remaining(time.Now())
		if ttl <= 0 {
			// Already expired, don't cache
			return nil
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SaveCollection writes a snapshot of a whole reference collection.
func (s *RedisStore) SaveCollection(ctx context.Context, key Key, items []entity.Entity, ttl time.Duration) error {
	return s.Set(ctx, key, NewEntry(items, ttl))
}

// LoadCollection reads a collection snapshot together with its remaining
// lifetime. Returns ErrCacheMiss if there is none.
func (s *RedisStore) LoadCollection(ctx context.Context, key Key) ([]entity.Entity, time.Duration, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if _, ok := entry.Value.([]any); !ok {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, 0, fmt.Errorf("%w: snapshot is not a list", ErrInvalidEntry)
	}
	return entity.List(entry.Value), entry.Remaining(time.Now()), nil
}
