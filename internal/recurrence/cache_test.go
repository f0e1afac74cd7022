package recurrence

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCache_BasicOperations(t *testing.T) {
	cache := NewCache(CacheConfig{TTL: 5 * time.Minute, MaxEntries: 100, CleanupInterval: time.Minute})
	defer cache.Close()

	key := cacheKey(Weekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), nil)
	if _, found := cache.Get(key); found {
		t.Fatal("expected cache miss, got hit")
	}

	want := dates("2024-01-01", "2024-01-08")
	cache.Set(key, want)

	got, found := cache.Get(key)
	if !found {
		t.Fatal("expected cache hit, got miss")
	}
	if !equalDates(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got[0] = d("1999-01-01")
	again, _ := cache.Get(key)
	if again[0] != want[0] {
		t.Fatal("cached slice was mutated through a returned copy")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	cache := NewCache(CacheConfig{TTL: time.Minute, MaxEntries: 10, CleanupInterval: time.Hour})
	defer cache.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("k", dates("2024-01-01"))
	now = now.Add(2 * time.Minute)

	if _, found := cache.Get("k"); found {
		t.Fatal("expected expired entry to miss")
	}
	if stats := cache.Stats(); stats.TotalEntries != 0 {
		t.Fatalf("expected expired entry to be removed, got %+v", stats)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(CacheConfig{TTL: time.Hour, MaxEntries: 2, CleanupInterval: time.Hour})
	defer cache.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("a", dates("2024-01-01"))
	now = now.Add(time.Second)
	cache.Set("b", dates("2024-01-02"))
	now = now.Add(time.Second)
	cache.Get("a")
	now = now.Add(time.Second)
	cache.Set("c", dates("2024-01-03"))

	if _, found := cache.Get("b"); found {
		t.Fatal("expected least recently used entry to be evicted")
	}
	if _, found := cache.Get("a"); !found {
		t.Fatal("expected recently used entry to remain")
	}
}

func TestCacheKey_DistinguishesInputs(t *testing.T) {
	base := cacheKey(Weekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), nil)
	variants := []string{
		cacheKey(Biweekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), nil),
		cacheKey(Weekly{}, d("2024-01-02"), d("2024-01-01"), d("2024-01-31"), nil),
		cacheKey(Weekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-02-01"), nil),
		cacheKey(Weekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), ExceptionIndex{d("2024-01-08"): noOverride()}),
		cacheKey(Custom{IntervalDays: 7}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), nil),
	}
	for i, key := range variants {
		if key == base {
			t.Fatalf("variant %d collided with base key", i)
		}
	}
	if again := cacheKey(Weekly{}, d("2024-01-01"), d("2024-01-01"), d("2024-01-31"), ExceptionIndex{}); again != base {
		t.Fatal("empty and nil exception sets should share a key")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(CacheConfig{TTL: time.Minute, MaxEntries: 50, CleanupInterval: 10 * time.Millisecond})
	defer cache.Close()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", worker, i%20)
				cache.Set(key, dates("2024-01-01"))
				cache.Get(key)
			}
		}(worker)
	}
	wg.Wait()

	if stats := cache.Stats(); stats.TotalEntries > 50 {
		t.Fatalf("expected at most 50 entries, got %d", stats.TotalEntries)
	}
}
