// Package cache stores RIA responses that change rarely, such as module
// definitions, in Redis.
//
// Module definitions describe the fields and references of a module. They
// are large and only change when the MuseumPlus installation is
// reconfigured, so the CLI caches them for a configurable TTL instead of
// asking the server on every call. Each entry is a Redis hash holding the
// raw body and its timestamps, expiring together with the entry.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{Endpoint: "module/Object/definition", Language: "de"}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 24*time.Hour))
//	}
//
// # Metrics
//
//   - mpapi_cache_hits_total{layer="redis"}
//   - mpapi_cache_misses_total
//   - mpapi_cache_size_bytes{layer="redis"}
//   - mpapi_cache_errors_total{operation}
package cache
