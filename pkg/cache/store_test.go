package cache

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	store.Set("a", 1, 0)

	v, ok := store.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := store.Get("b"); ok {
		t.Error("Get(b) should miss")
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestMemoryStore_ExpiredEntryIsMiss(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	store.Set("k", "stale", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if v, ok := store.Get("k"); ok {
		t.Fatalf("expired entry returned: %v", v)
	}

	stats := store.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStore_LazyExpiry(t *testing.T) {
	store := NewMemoryStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Set("k", "v", time.Minute)
	now = now.Add(2 * time.Minute)

	// Nothing sweeps the map; the entry is only removed on read.
	if store.Len() != 1 {
		t.Fatalf("Len() = %d before read, want 1", store.Len())
	}
	if store.Has("k") {
		t.Error("Has(k) should be false after expiry")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after read, want 0", store.Len())
	}
}

func TestMemoryStore_HasAndPeekDoNotCount(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	store.Set("k", "v", 0)

	store.Has("k")
	store.Has("missing")
	store.Peek("k")

	stats := store.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("stats = %+v, want no hits or misses", stats)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	store.Set("k", "v", 0)
	store.Delete("k")

	if store.Has("k") {
		t.Error("Has(k) should be false after Delete")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Set("shared", i, 0)
				store.Get("shared")
			}
		}(i)
	}
	wg.Wait()

	if stats := store.Stats(); stats.Hits != 2000 {
		t.Errorf("Hits = %d, want 2000", stats.Hits)
	}
}
