package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected v, got %q", got)
	}

	exists, _ := c.Exists(ctx, "k")
	if !exists {
		t.Fatal("expected key to exist")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); err != ErrCacheMiss {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestMemoryCacheGetOrSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	got, err := c.GetOrSet(ctx, "k", time.Minute, fn)
	if err != nil || string(got) != "computed" {
		t.Fatalf("first call: %q, %v", got, err)
	}

	got, err = c.GetOrSet(ctx, "k", time.Minute, fn)
	if err != nil || string(got) != "computed" {
		t.Fatalf("second call: %q, %v", got, err)
	}
	if calls != 1 {
		t.Fatalf("expected the compute function called once, got %d", calls)
	}
}

func TestMemoryCacheGetOrSetPropagatesError(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	wantErr := errors.New("compute failed")
	_, err := c.GetOrSet(context.Background(), "k", time.Minute, func() ([]byte, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the compute error, got %v", err)
	}

	if _, err := c.Get(context.Background(), "k"); err != ErrCacheMiss {
		t.Fatal("a failed compute must not populate the cache")
	}
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)

	c.Delete(ctx, "a")
	if _, err := c.Get(ctx, "a"); err != ErrCacheMiss {
		t.Fatal("expected deleted key to miss")
	}

	c.Clear(ctx)
	if _, err := c.Get(ctx, "b"); err != ErrCacheMiss {
		t.Fatal("expected cleared cache to miss")
	}
}
