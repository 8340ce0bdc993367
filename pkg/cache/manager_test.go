package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test
// when none is running. The redis-backed integration tests use
// testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Endpoint: "module/Object/definition", Language: "de"}
	entry := NewEntry([]byte(`<application><modules><module name="Object"/></modules></application>`), 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.TTL() <= 0 {
		t.Errorf("Expected positive TTL, got %v", retrieved.TTL())
	}
}

func TestManager_LanguageIsPartOfKey(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	de := Key{Endpoint: "module/definition", Language: "de"}
	if err := manager.Set(ctx, de, NewEntry([]byte("de"), time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := manager.Get(ctx, Key{Endpoint: "module/definition", Language: "en"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for other language, got %v", err)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	_, err := manager.Get(context.Background(), Key{Endpoint: "module/Nope/definition"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := Key{Endpoint: "module/Object/definition"}

	entry := &Entry{
		Data:    []byte("stale"),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields []any
	}{
		{name: "missing data", fields: []any{"cached_at", "1", "expires", "2"}},
		{name: "malformed expiry", fields: []any{"data", "<x/>", "cached_at", "1", "expires", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key{Endpoint: "module/" + tt.name + "/definition"}
			if err := client.HSet(ctx, key.String(), tt.fields...).Err(); err != nil {
				t.Fatalf("raw hset failed: %v", err)
			}

			_, err := manager.Get(ctx, key)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestManager_SetSetsRedisExpiry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "module/Object/definition", Instance: "https://mp.example.org"}

	if err := manager.Set(ctx, key, NewEntry([]byte("<definition/>"), 90*time.Second)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := client.PTTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("PTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 90*time.Second {
		t.Errorf("Redis TTL = %v, want within (0, 90s]", ttl)
	}

	raw, err := client.HGet(ctx, key.String(), "data").Result()
	if err != nil {
		t.Fatalf("HGet failed: %v", err)
	}
	if raw != "<definition/>" {
		t.Errorf("stored body = %q, want it unencoded", raw)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := Key{Endpoint: "module/Person/definition"}

	if err := manager.Set(ctx, key, NewEntry([]byte("x"), 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	if err := manager.Set(context.Background(), Key{Endpoint: "module/definition"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
