// SPDX-License-Identifier: MIT

package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := &RedisCache{
		client: client,
		logger: zerolog.Nop(),
	}

	return mr, cache
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("project:a", 30*time.Minute, 5*time.Minute)

	val, found := cache.Get("project:a")
	if !found {
		t.Fatal("expected value to be found")
	}
	if val != 30*time.Minute {
		t.Errorf("got %v, want 30m", val)
	}

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}
	if stats.Sets != 1 {
		t.Errorf("sets = %d, want 1", stats.Sets)
	}
}

func TestRedisCache_GetMissing(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	if _, found := cache.Get("nope"); found {
		t.Error("expected miss for absent key")
	}
	if stats := cache.Stats(); stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestRedisCache_Expiration(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("runner:x", time.Hour, time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, found := cache.Get("runner:x"); found {
		t.Error("expected miss after TTL expiry")
	}
}

func TestRedisCache_MalformedEntry(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	require := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	require(mr.Set("project:bad", "not-a-number"))

	if _, found := cache.Get("project:bad"); found {
		t.Error("malformed entry should be treated as a miss")
	}
}

func TestRedisCache_DeleteAndClear(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("a", time.Minute, time.Minute)
	cache.Delete("a")
	if _, found := cache.Get("a"); found {
		t.Error("deleted entry should not be returned")
	}

	cache.Set("b", time.Minute, time.Minute)
	cache.Clear()
	if _, found := cache.Get("b"); found {
		t.Error("cleared entry should not be returned")
	}
}

func TestRedisCache_HealthCheck(t *testing.T) {
	mr, cache := setupMiniRedis(t)

	if err := cache.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed on live server: %v", err)
	}

	mr.Close()
	if err := cache.HealthCheck(context.Background()); err == nil {
		t.Error("health check should fail after server shutdown")
	}
}
