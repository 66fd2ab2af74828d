package application

import (
	"testing"
	"time"

	"github.com/example/field-attendance/internal/window"
)

func sampleConfig(scope string) WindowConfig {
	return WindowConfig{
		Scope:  scope,
		Window: window.TimeWindow{Start: window.MustClock(6, 0), End: window.MustClock(9, 0)},
	}
}

func TestWindowCacheStoresPerScope(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newWindowCache(time.Minute, 4, func() time.Time { return current })

	cache.Store("global", sampleConfig("global"))
	cache.Store("manager:m1", sampleConfig("manager:m1"))

	got, ok := cache.Get("manager:m1")
	if !ok || got.Scope != "manager:m1" {
		t.Fatalf("expected cached manager scope, got %+v (hit=%v)", got, ok)
	}
	if _, ok := cache.Get("manager:m2"); ok {
		t.Fatalf("expected miss for unknown scope")
	}
}

func TestWindowCacheExpiresEntries(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newWindowCache(time.Second, 4, func() time.Time { return current })

	cache.Store("global", sampleConfig("global"))
	if _, ok := cache.Get("global"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("global"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestWindowCacheEvictsWhenFull(t *testing.T) {
	cache := newWindowCache(time.Minute, 2, time.Now)
	cache.Store("a", sampleConfig("a"))
	cache.Store("b", sampleConfig("b"))
	cache.Store("c", sampleConfig("c"))

	cache.mu.RLock()
	size := len(cache.entries)
	cache.mu.RUnlock()
	if size != 2 {
		t.Fatalf("expected cache bounded to 2 entries, got %d", size)
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatalf("expected most recent entry to be retained")
	}
}

func TestWindowCacheInvalidate(t *testing.T) {
	cache := newWindowCache(time.Minute, 4, time.Now)
	cache.Store("global", sampleConfig("global"))
	cache.Invalidate()
	if _, ok := cache.Get("global"); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}
