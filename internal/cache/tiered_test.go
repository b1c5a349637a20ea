package cache

import (
	"context"
	"testing"
	"time"
)

func newTiered(t *testing.T) (*TieredCache, *InMemoryCache, *InMemoryCache) {
	t.Helper()
	l1 := NewInMemoryCache()
	l2 := NewInMemoryCache()
	tc := NewTieredCache(l1, l2, 10*time.Second)
	t.Cleanup(func() { tc.Close() })
	return tc, l1, l2
}

func TestTieredCache_L1Hit(t *testing.T) {
	tc, _, _ := newTiered(t)
	ctx := context.Background()

	if err := tc.Set(ctx, "feed:a", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := tc.Get(ctx, "feed:a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "v1" {
		t.Fatalf("expected 'v1', got '%s'", val)
	}
}

func TestTieredCache_L2Fallthrough(t *testing.T) {
	tc, l1, l2 := newTiered(t)
	ctx := context.Background()

	// Value only in L2, as after a process restart
	if err := l2.Set(ctx, "feed:b", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("L2 Set failed: %v", err)
	}

	val, err := tc.Get(ctx, "feed:b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "v2" {
		t.Fatalf("expected 'v2', got '%s'", val)
	}

	// L1 should now hold the value
	if val, err = l1.Get(ctx, "feed:b"); err != nil || string(val) != "v2" {
		t.Fatalf("L1 not populated after fallthrough: val=%s err=%v", val, err)
	}
}

func TestTieredCache_BothMiss(t *testing.T) {
	tc, _, _ := newTiered(t)

	if _, err := tc.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestTieredCache_Delete(t *testing.T) {
	tc, l1, l2 := newTiered(t)
	ctx := context.Background()

	tc.Set(ctx, "feed:c", []byte("v"), time.Minute)
	if err := tc.Delete(ctx, "feed:c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := l1.Get(ctx, "feed:c"); err != ErrNotFound {
		t.Fatalf("key still in L1 after delete: %v", err)
	}
	if _, err := l2.Get(ctx, "feed:c"); err != ErrNotFound {
		t.Fatalf("key still in L2 after delete: %v", err)
	}
}

func TestTieredCache_TTLReportsL2(t *testing.T) {
	tc, _, l2 := newTiered(t)
	ctx := context.Background()

	tc.Set(ctx, "feed:d", []byte("v"), time.Hour)

	ttl, err := tc.TTL(ctx, "feed:d")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	// L1 entries live 10s; the reported TTL must reflect the L2 lifetime.
	if ttl <= 50*time.Minute || ttl > time.Hour {
		t.Fatalf("TTL should reflect L2 lifetime, got %v", ttl)
	}
	if _, err := l2.TTL(ctx, "feed:d"); err != nil {
		t.Fatalf("L2 TTL failed: %v", err)
	}
}
