package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, opts ...CacheOption) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, opts...)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t, WithPrefix("test:"))
	ctx := context.Background()

	key, err := Key(map[string]any{"model": "food_chain", "seed": 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	data := NewExport(RunMetadata{Model: "food_chain", VarNames: []string{"X", "Y"}}, sampleResults())
	if err := c.Set(ctx, key, data); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:" + key) {
		t.Error("entry not stored under prefix")
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "food_chain" || len(got.Realizations) != 2 {
		t.Errorf("cached data = %+v", got)
	}
}

func TestRedisCacheTTL(t *testing.T) {
	c, mr := newTestCache(t, WithTTL(time.Minute))
	ctx := context.Background()

	if err := c.Set(ctx, "k", &ExportData{Model: "m"}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected expired entry, got %v", err)
	}
}

func TestKeyStable(t *testing.T) {
	type req struct {
		Model string
		Seed  int64
	}
	a, _ := Key(req{"m", 1})
	b, _ := Key(req{"m", 1})
	c, _ := Key(req{"m", 2})
	if a != b || a == c || len(a) != 64 {
		t.Errorf("keys a=%s b=%s c=%s", a, b, c)
	}
}
