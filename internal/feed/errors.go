package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/feedgate/feedgate/internal/observability"
)

// ErrNotCached is returned by the read-through service when an upstream
// fetch failed and the cache held nothing to fall back on.
var ErrNotCached = errors.New("feed: no cached value available")

// RateLimitError reports an upstream 429. RetryAfter already includes
// the safety margin added on top of the provider's reset hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// UpstreamError reports a failed upstream call: timeout, malformed
// payload, or a non-2xx status. APIError carries the provider's raw
// error body when one was returned.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	APIError   json.RawMessage
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// spanFail records the error on the upstream call's span before it is
// handed back to the orchestrator.
func spanFail(span trace.Span, err error) error {
	observability.SetSpanError(span, err)
	return err
}
