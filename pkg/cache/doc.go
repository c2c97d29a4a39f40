// Package cache provides the reference cache that sits between the
// orchestrator and the upstream transport.
//
// There are two tiers:
//
//   - MemoryStore is an in-process TTL map. Entries carry their insertion
//     time and TTL and expire lazily: age is checked on every read and an
//     expired entry is evicted and reported as a miss, never returned stale.
//   - RedisStore is an optional shared snapshot tier. Whole reference
//     collections (all people, all projects) are written there after a
//     successful preload so that other processes can warm up without
//     touching the upstream.
//
// Reference combines both with a transport to load complete collections
// once per TTL window:
//
//	ref := cache.NewReference(transport, cache.DefaultConfig(accountID))
//	ref.PreloadCollection(ctx, entity.KindPerson, false)
//
//	person, ok := ref.Person("42")
//	match, ok := ref.FindByName(entity.KindPerson, "  ada lovelace ")
//
// Preload failures never reach the caller. They are logged and the kind
// simply stays cold; consumers fall back to per-entity fetches.
//
// # Metrics
//
//   - pm_cache_hits_total{tier} - Cache hits by tier (memory, redis)
//   - pm_cache_misses_total{tier} - Cache misses by tier
//   - pm_cache_evictions_total{tier} - Expired entries removed on read
//   - pm_cache_preloads_total{kind, outcome} - Collection preloads
//   - pm_cache_errors_total{operation} - Redis operation errors
package cache
