package feed

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/feedgate/feedgate/internal/cache"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *cache.InMemoryCache) {
	t.Helper()
	c := cache.NewInMemoryCache()
	t.Cleanup(func() { c.Close() })
	return NewService(c, opts...), c
}

// countingFetch returns a FetchFunc that counts invocations.
func countingFetch(batch *Batch, err error) (FetchFunc, *int) {
	calls := new(int)
	return func(context.Context) (*Batch, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return batch, nil
	}, calls
}

func TestFetchWithCache_WarmHitSkipsUpstream(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	cached := []Item{{ID: "t1", Title: "warm"}}
	payload, _ := json.Marshal(cached)
	c.Set(ctx, "K", payload, 15*time.Minute)

	fetch, calls := countingFetch(nil, errors.New("must not be called"))
	res, err := svc.FetchWithCache(ctx, "K", 15*time.Minute, fetch)
	if err != nil {
		t.Fatalf("FetchWithCache failed: %v", err)
	}
	if *calls != 0 {
		t.Fatalf("cache hit must not invoke upstream, got %d calls", *calls)
	}
	if res.Source != SourceCache || !res.Cached {
		t.Fatalf("unexpected provenance: %+v", res)
	}
	if !reflect.DeepEqual(res.Items, cached) {
		t.Fatalf("expected cached items %+v, got %+v", cached, res.Items)
	}
	if res.ExpiresIn <= 0 || res.ExpiresIn > 15*time.Minute {
		t.Fatalf("unexpected remaining TTL: %v", res.ExpiresIn)
	}
}

func TestFetchWithCache_MissFetchesAndCaches(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fresh := []Item{{ID: "a"}, {ID: "b"}}
	fetch, calls := countingFetch(&Batch{Items: fresh, RequestCount: 1}, nil)

	res, err := svc.FetchWithCache(ctx, "K", 15*time.Minute, fetch)
	if err != nil {
		t.Fatalf("FetchWithCache failed: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", *calls)
	}
	if res.Source != SourceUpstream || res.Cached {
		t.Fatalf("unexpected provenance: %+v", res)
	}
	if res.ItemCount != 2 {
		t.Fatalf("expected ItemCount=2, got %d", res.ItemCount)
	}

	// A second identical call must be served from cache, bit-for-bit.
	fetch2, calls2 := countingFetch(nil, errors.New("must not be called"))
	res2, err := svc.FetchWithCache(ctx, "K", 15*time.Minute, fetch2)
	if err != nil {
		t.Fatalf("second FetchWithCache failed: %v", err)
	}
	if *calls2 != 0 {
		t.Fatalf("second call hit upstream %d times", *calls2)
	}
	if res2.Source != SourceCache {
		t.Fatalf("expected cache hit, got %s", res2.Source)
	}
	if !reflect.DeepEqual(res2.Items, fresh) {
		t.Fatalf("cached data differs: %+v vs %+v", res2.Items, fresh)
	}
}

func TestFetchWithCache_EmptyFetchNotCached(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fetch, calls := countingFetch(&Batch{Items: nil, RequestCount: 1}, nil)

	res, err := svc.FetchWithCache(ctx, "K", 15*time.Minute, fetch)
	if err != nil {
		t.Fatalf("FetchWithCache failed: %v", err)
	}
	if res.ItemCount != 0 || res.Items == nil {
		t.Fatalf("expected empty non-nil items, got %+v", res.Items)
	}

	// The empty result was not cached, so the next call fetches again.
	if _, err := svc.FetchWithCache(ctx, "K", 15*time.Minute, fetch); err != nil {
		t.Fatalf("second FetchWithCache failed: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected upstream to be called twice, got %d", *calls)
	}
}

func TestFetchWithCache_FallbackServesCachedValue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	warm := []Item{{ID: "x", Title: "cached copy"}}
	warmFetch, _ := countingFetch(&Batch{Items: warm, RequestCount: 1}, nil)
	if _, err := svc.FetchWithCache(ctx, "K", time.Hour, warmFetch); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}

	// Simulate primary-key eviction so the fallback exercises the
	// stale slot rather than the narrow pre-eviction race.
	svc.cache.Delete(ctx, "K")

	fetchErr := &UpstreamError{Provider: "reddit", Message: "timeout"}
	failing, _ := countingFetch(nil, fetchErr)

	res, err := svc.FetchWithCache(ctx, "K", time.Hour, failing)
	if err != nil {
		t.Fatalf("expected fallback serve, got error: %v", err)
	}
	if res.Source != SourceFallback || !res.Cached {
		t.Fatalf("unexpected provenance: %+v", res)
	}
	if !reflect.DeepEqual(res.Items, warm) {
		t.Fatalf("fallback data differs: %+v vs %+v", res.Items, warm)
	}
	if res.FetchErr == nil || !errors.Is(res.FetchErr, error(fetchErr)) {
		t.Fatalf("expected triggering error in result, got: %v", res.FetchErr)
	}
}

func TestFetchWithCache_FallbackPrefersPrimaryKey(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	// A concurrent request populated the primary key after our miss.
	newer := []Item{{ID: "newer"}}
	payload, _ := json.Marshal(newer)
	c.Set(ctx, "K", payload, time.Hour)

	failing, _ := countingFetch(nil, &UpstreamError{Provider: "reddit", Message: "down"})
	res, err := svc.FetchWithCache(ctx, "K", time.Hour, failing)
	if err != nil {
		t.Fatalf("expected fallback serve, got: %v", err)
	}

	// The initial Get raced the concurrent write, but fallback re-reads
	// the key; we must see the concurrently written value.
	if !reflect.DeepEqual(res.Items, newer) {
		t.Fatalf("expected concurrently cached value, got %+v", res.Items)
	}
}

func TestFetchWithCache_ColdFailureSurfacesTypedError(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fetchErr := &UpstreamError{Provider: "reddit", Message: "timeout"}
	failing, _ := countingFetch(nil, fetchErr)

	_, err := svc.FetchWithCache(ctx, "K", time.Hour, failing)
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got: %v", err)
	}
}

func TestFetchWithCache_ColdRateLimitKeepsRetryHint(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fetchErr := &RateLimitError{Provider: "twitter", RetryAfter: 15 * time.Second, ResetAt: time.Now().Add(10 * time.Second)}
	failing, _ := countingFetch(nil, fetchErr)

	_, err := svc.FetchWithCache(ctx, "K", time.Hour, failing)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got: %v", err)
	}
	if rle.RetryAfter < 0 {
		t.Fatalf("retryAfterSeconds must be >= 0, got %v", rle.RetryAfter)
	}
}

func TestFetchWithCache_StaleFactorZeroDisablesSlot(t *testing.T) {
	svc, c := newTestService(t, WithStaleFactor(0))
	ctx := context.Background()

	warm := []Item{{ID: "x"}}
	warmFetch, _ := countingFetch(&Batch{Items: warm, RequestCount: 1}, nil)
	if _, err := svc.FetchWithCache(ctx, "K", time.Hour, warmFetch); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}
	if ok, _ := c.Exists(ctx, "K"+staleSuffix); ok {
		t.Fatal("stale slot written despite factor 0")
	}

	// After eviction there is nothing to fall back on.
	c.Delete(ctx, "K")
	failing, _ := countingFetch(nil, &UpstreamError{Provider: "reddit", Message: "down"})
	if _, err := svc.FetchWithCache(ctx, "K", time.Hour, failing); err == nil {
		t.Fatal("expected error with no stale slot and an evicted key")
	}
}

func TestFetchWithCache_StaleSlotOutlivesPrimary(t *testing.T) {
	svc, c := newTestService(t, WithStaleFactor(4))
	ctx := context.Background()

	warm := []Item{{ID: "x"}}
	warmFetch, _ := countingFetch(&Batch{Items: warm, RequestCount: 1}, nil)
	if _, err := svc.FetchWithCache(ctx, "K", time.Minute, warmFetch); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}

	primaryTTL, _ := c.TTL(ctx, "K")
	staleTTL, _ := c.TTL(ctx, "K"+staleSuffix)
	if staleTTL <= primaryTTL {
		t.Fatalf("stale slot TTL %v must exceed primary %v", staleTTL, primaryTTL)
	}
}

func TestFetchWithCache_LegacyStringValueServed(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	// A value written by an older writer: plain text, not an item list.
	c.Set(ctx, "K", []byte("legacy payload"), time.Hour)

	fetch, calls := countingFetch(nil, errors.New("must not be called"))
	res, err := svc.FetchWithCache(ctx, "K", time.Hour, fetch)
	if err != nil {
		t.Fatalf("FetchWithCache failed: %v", err)
	}
	if *calls != 0 {
		t.Fatal("legacy hit must not invoke upstream")
	}
	if res.Items != nil {
		t.Fatalf("legacy payload must not decode into items: %+v", res.Items)
	}
	var s string
	if err := json.Unmarshal(res.Raw, &s); err != nil || s != "legacy payload" {
		t.Fatalf("expected raw passthrough of legacy value, got %s (%v)", res.Raw, err)
	}
}

func TestFetchWithCache_CacheTransportErrorPropagates(t *testing.T) {
	svc := NewService(failingCache{})
	fetch, calls := countingFetch(nil, errors.New("must not be called"))

	_, err := svc.FetchWithCache(context.Background(), "K", time.Hour, fetch)
	if err == nil || err.Error() != "redis: connection refused" {
		t.Fatalf("expected transport error to propagate, got: %v", err)
	}
	if *calls != 0 {
		t.Fatal("transport failure on initial read must not reach upstream")
	}
}

// failingCache simulates an unreachable backend.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("redis: connection refused")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis: connection refused")
}
func (failingCache) Delete(context.Context, string) error { return nil }
func (failingCache) Exists(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (failingCache) TTL(context.Context, string) (time.Duration, error) {
	return 0, errors.New("redis: connection refused")
}
func (failingCache) Ping(context.Context) error { return nil }
func (failingCache) Close() error               { return nil }
