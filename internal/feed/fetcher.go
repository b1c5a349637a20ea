package feed

import "context"

// Fetcher produces one page of a provider's feed per call.
// Implementations must not panic on upstream failures: rate limits and
// unavailable providers are returned as *RateLimitError and
// *UpstreamError so the read-through layer can decide what the caller
// sees.
type Fetcher interface {
	// Name identifies the provider (e.g. "reddit", "twitter"). It is
	// used in response provenance and metrics labels.
	Name() string

	// FetchPage issues one bounded-timeout HTTP call. cursor is the
	// continuation token from the previous batch, empty for the first
	// page.
	FetchPage(ctx context.Context, cursor string) (*Batch, error)
}

// FetchAll drives f through consecutive pages until the listing is
// exhausted, maxRequests calls have been consumed, or maxItems items
// have been accumulated. Unbounded pagination against a rate-limited
// third party is the principal risk here: both limits hold regardless of
// how much more data the provider offers.
func FetchAll(ctx context.Context, f Fetcher, maxItems, maxRequests int) (*Batch, error) {
	if maxItems <= 0 {
		maxItems = 25
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}

	out := &Batch{}
	cursor := ""
	for out.RequestCount < maxRequests {
		page, err := f.FetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out.RequestCount += max(page.RequestCount, 1)

		for _, item := range page.Items {
			out.Items = append(out.Items, item)
			if len(out.Items) >= maxItems {
				out.Cursor = page.Cursor
				return out, nil
			}
		}

		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}
	out.Cursor = cursor
	return out, nil
}
