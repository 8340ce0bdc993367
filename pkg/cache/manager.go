package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Hash fields of a stored entry. Bodies are stored as they are so large
// XML definitions are not re-encoded.
const (
	fieldData     = "data"
	fieldCachedAt = "cached_at"
	fieldExpires  = "expires"
)

// Manager stores entries as Redis hashes that expire with the entry.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get returns the entry for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	fields, err := m.redis.HGetAll(ctx, key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	entry, err := decodeEntry(fields)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry, nil
}

// Set stores entry until it expires. Expired entries are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	k := key.String()
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldData, entry.Data,
			fieldCachedAt, strconv.FormatInt(entry.CachedAt.UnixMilli(), 10),
			fieldExpires, strconv.FormatInt(entry.Expires.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set entry: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(entry.Data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (*Entry, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("%w: no %s field", ErrInvalidEntry, fieldData)
	}
	cachedAt, err := parseMillis(fields, fieldCachedAt)
	if err != nil {
		return nil, err
	}
	expires, err := parseMillis(fields, fieldExpires)
	if err != nil {
		return nil, err
	}
	return &Entry{Data: []byte(data), CachedAt: cachedAt, Expires: expires}, nil
}

func parseMillis(fields map[string]string, name string) (time.Time, error) {
	ms, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidEntry, name, fields[name])
	}
	return time.UnixMilli(ms), nil
}
