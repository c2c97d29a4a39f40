package cache

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of a store's counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// Store is the key/value contract shared by the reference and per-query
// tiers.
type Store interface {
	Set(key string, value any, ttl time.Duration)
	Get(key string) (any, bool)
	Has(key string) bool
	Delete(key string)
	Stats() Stats
}

// MemoryStore is an in-process TTL map with lazy expiry.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	defaultTTL time.Duration
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryStore creates a store. defaultTTL applies to Set calls with
// ttl <= 0; zero means entries never expire.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Set stores value under key. Writes are last-writer-wins.
func (s *MemoryStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	s.entries[key] = &Entry{Value: value, InsertedAt: s.now(), TTL: ttl}
	s.mu.Unlock()
}

// Get returns the value under key. Expired entries are evicted and
// reported as a miss.
func (s *MemoryStore) Get(key string) (any, bool) {
	return s.lookup(key, true)
}

// Has reports whether a live entry exists without touching hit/miss
// counters.
func (s *MemoryStore) Has(key string) bool {
	_, ok := s.lookup(key, false)
	return ok
}

// Peek is Get without hit/miss accounting. Expired entries are still
// evicted.
func (s *MemoryStore) Peek(key string) (any, bool) {
	return s.lookup(key, false)
}

func (s *MemoryStore) lookup(key string, count bool) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if ok && entry.IsExpired(s.now()) {
		delete(s.entries, key)
		s.evictions++
		CacheEvictions.WithLabelValues(tierMemory).Inc()
		ok = false
	}

	if !count {
		if !ok {
			return nil, false
		}
		return entry.Value, true
	}

	if !ok {
		s.misses++
		CacheMisses.WithLabelValues(tierMemory).Inc()
		return nil, false
	}
	s.hits++
	CacheHits.WithLabelValues(tierMemory).Inc()
	return entry.Value, true
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns the current counters.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Entries:   len(s.entries),
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}
