package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/feedgate/feedgate/internal/cache"
	"github.com/feedgate/feedgate/internal/logging"
	"github.com/feedgate/feedgate/internal/metrics"
)

// Source reports where a read-through result came from.
type Source string

const (
	// SourceUpstream marks a fresh fetch that was just cached.
	SourceUpstream Source = "upstream"
	// SourceCache marks a cache hit.
	SourceCache Source = "cache"
	// SourceFallback marks a cached value served after an upstream
	// failure.
	SourceFallback Source = "fallback"
)

// staleSuffix namespaces the last-known-good slot next to the primary
// cache key.
const staleSuffix = "|stale"

// Result is the outcome of a read-through fetch. Exactly one of Items
// or Raw is populated: Raw carries a cached payload that predates the
// item shape and is passed through untouched.
type Result struct {
	Items     []Item
	Raw       json.RawMessage
	Source    Source
	Cached    bool
	ItemCount int
	Requests  int
	// ExpiresIn is the remaining cache lifetime for served cache hits,
	// or the configured TTL for fresh results.
	ExpiresIn time.Duration
	// FetchErr is the upstream error that triggered a fallback serve.
	FetchErr error
}

// FetchFunc produces a fresh batch from upstream. It is only invoked on
// a cache miss.
type FetchFunc func(ctx context.Context) (*Batch, error)

// Service implements the read-through-with-fallback pattern over a
// cache.Cache. It is safe for concurrent use; two concurrent misses for
// the same key may both fetch and both write, which is benign since
// values are idempotent snapshots within the TTL window.
type Service struct {
	cache       cache.Cache
	staleFactor int
}

// Option configures a Service.
type Option func(*Service)

// WithStaleFactor controls the last-known-good slot written alongside
// every primary cache entry at factor times the primary TTL. The slot
// makes fallback an actual stale-serving mechanism instead of a race
// against eviction; factor 0 disables it, restoring plain re-reads of
// the primary key.
func WithStaleFactor(factor int) Option {
	return func(s *Service) { s.staleFactor = factor }
}

// NewService creates a read-through service over c. The default stale
// factor is 4.
func NewService(c cache.Cache, opts ...Option) *Service {
	s := &Service{cache: c, staleFactor: 4}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchWithCache resolves key through the cache, invoking fetch only on
// a miss. Fetch failures are resolved against the cache (primary key
// first, then the stale slot) before being surfaced; the typed fetch
// error is returned only when no cached copy exists. A transport error
// on the initial cache read propagates to the caller.
func (s *Service) FetchWithCache(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (*Result, error) {
	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil && len(raw) > 0:
		res := resultFromRaw(raw)
		res.Source = SourceCache
		res.Cached = true
		res.ExpiresIn = s.remainingTTL(ctx, key, ttl)
		return res, nil
	case err != nil && !errors.Is(err, cache.ErrNotFound):
		return nil, err
	}

	batch, fetchErr := fetch(ctx)
	if fetchErr == nil {
		items := batch.Items
		if items == nil {
			items = []Item{}
		}
		// An empty-but-successful fetch is served but never cached, so
		// a transient empty upstream response cannot shadow real data
		// for a full TTL window.
		if len(items) > 0 {
			s.store(ctx, key, items, ttl)
		}
		return &Result{
			Items:     items,
			Source:    SourceUpstream,
			ItemCount: len(items),
			Requests:  batch.RequestCount,
			ExpiresIn: ttl,
		}, nil
	}

	// Re-read the key rather than trusting the miss from above: a
	// concurrent request may have populated it while the fetch ran.
	res, err := s.fallback(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotCached) {
			logging.Op().Warn("cache fallback read failed", "key", key, "error", err)
		}
		return nil, fetchErr
	}
	metrics.Global().RecordFallback(key)
	res.FetchErr = fetchErr
	res.ExpiresIn = s.remainingTTL(ctx, key, ttl)
	return res, nil
}

func (s *Service) store(ctx context.Context, key string, items []Item, ttl time.Duration) {
	payload, err := json.Marshal(items)
	if err != nil {
		logging.Op().Error("marshal feed items", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		logging.Op().Warn("cache write failed", "key", key, "error", err)
		return
	}
	if s.staleFactor > 0 {
		if err := s.cache.Set(ctx, key+staleSuffix, payload, ttl*time.Duration(s.staleFactor)); err != nil {
			logging.Op().Warn("stale slot write failed", "key", key, "error", err)
		}
	}
}

func (s *Service) fallback(ctx context.Context, key string) (*Result, error) {
	keys := []string{key}
	if s.staleFactor > 0 {
		keys = append(keys, key+staleSuffix)
	}
	var lastErr error = ErrNotCached
	for _, k := range keys {
		raw, err := s.cache.Get(ctx, k)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		if len(raw) == 0 {
			continue
		}
		res := resultFromRaw(raw)
		res.Source = SourceFallback
		res.Cached = true
		return res, nil
	}
	return nil, lastErr
}

func (s *Service) remainingTTL(ctx context.Context, key string, configured time.Duration) time.Duration {
	if d, err := s.cache.TTL(ctx, key); err == nil && d > 0 {
		return d
	}
	return configured
}

// resultFromRaw decodes a cached payload. Payloads that do not decode as
// item lists are passed through rather than rejected, so values written
// by older readers stay servable.
func resultFromRaw(raw []byte) *Result {
	var items []Item
	if err := json.Unmarshal(raw, &items); err == nil {
		return &Result{Items: items, ItemCount: len(items)}
	}
	if json.Valid(raw) {
		return &Result{Raw: json.RawMessage(raw)}
	}
	quoted, _ := json.Marshal(string(raw))
	return &Result{Raw: quoted}
}
