// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedCache(clock *fakeClock) *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, Now: clock.Now})
}

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, MaxEntries: 100})
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	if err := cache.Set(ctx, "stalkfish_last_error", []byte("v1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := cache.Get(ctx, "stalkfish_last_error")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("Get = %q, want %q", val, "v1")
	}

	has, err := cache.Has(ctx, "stalkfish_last_error")
	if err != nil || !has {
		t.Errorf("Has = %v, %v; want true, nil", has, err)
	}

	if err := cache.Delete(ctx, "stalkfish_last_error"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Get(ctx, "stalkfish_last_error"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_ExpiresWithClock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cache := newClockedCache(clock)
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	if err := cache.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(999 * time.Millisecond)
	if _, err := cache.Get(ctx, "k"); err != nil {
		t.Errorf("entry expired early: %v", err)
	}

	clock.Advance(2 * time.Millisecond)
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after TTL, got %v", err)
	}
	if has, _ := cache.Has(ctx, "k"); has {
		t.Error("expired entry still reported by Has")
	}
}

func TestMemoryCache_EvictsSoonestExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cache := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, MaxEntries: 2, Now: clock.Now})
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "stalkfish_connect_timeout", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "stalkfish_last_error", []byte("fp"), time.Second)
	_ = cache.Set(ctx, "user:7", []byte("admin"), 10*time.Minute)

	if cache.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cache.Len())
	}
	if has, _ := cache.Has(ctx, "stalkfish_last_error"); has {
		t.Error("entry closest to expiry should have been evicted")
	}
	for _, k := range []string{"stalkfish_connect_timeout", "user:7"} {
		if has, _ := cache.Has(ctx, k); !has {
			t.Errorf("%s evicted", k)
		}
	}
}

func TestMemoryCache_FullPrefersExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cache := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, MaxEntries: 2, Now: clock.Now})
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("a"), time.Second)
	_ = cache.Set(ctx, "b", []byte("b"), time.Second)
	clock.Advance(2 * time.Second)
	_ = cache.Set(ctx, "c", []byte("c"), time.Second)

	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1 after expired entries were swept", cache.Len())
	}

	// Overwriting an existing key never evicts.
	_ = cache.Set(ctx, "d", []byte("d"), time.Minute)
	_ = cache.Set(ctx, "d", []byte("d2"), time.Minute)
	if got, _ := cache.Get(ctx, "c"); string(got) != "c" {
		t.Errorf("Get(c) = %q after overwrite of d", got)
	}
}

func TestMemoryCache_ValueCopy(t *testing.T) {
	cache := NewSimpleMemoryCache(time.Hour)
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	in := []byte("abc")
	_ = cache.Set(ctx, "k", in, 0)
	in[0] = 'x'

	out, _ := cache.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value mutated through input slice: %q", out)
	}
	out[0] = 'y'
	again, _ := cache.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through output slice: %q", again)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewSimpleMemoryCache(time.Hour)
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cache.Set(ctx, "shared", []byte("v"), 0)
				_, _ = cache.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()
}

func TestMemoryCache_Close(t *testing.T) {
	cache := NewSimpleMemoryCache(time.Hour)
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	ctx := context.Background()
	if err := cache.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Set after Close = %v, want ErrCacheClosed", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after Close = %v, want ErrCacheClosed", err)
	}
	if err := cache.Ping(ctx); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Ping after Close = %v, want ErrCacheClosed", err)
	}
}
