package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/feedgate/feedgate/internal/feed"
	"github.com/feedgate/feedgate/internal/logging"
	"github.com/feedgate/feedgate/internal/metrics"
	"github.com/feedgate/feedgate/internal/observability"
)

// FeedHandler serves the read-through feed endpoints.
type FeedHandler struct {
	Registry *feed.Registry
	Svc      *feed.Service
}

// RegisterRoutes registers the feed routes on the given mux.
func (h *FeedHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/feeds", h.ListFeeds)
	mux.HandleFunc("GET /api/feeds/{name}", h.GetFeed)
}

// ListFeeds handles GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{
		Status: StatusOK,
		Data:   map[string]any{"feeds": h.Registry.Names()},
	})
}

// GetFeed handles GET /api/feeds/{name}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := h.Registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, StatusNotFound, "unknown feed: "+name)
		return
	}

	ctx, span := observability.StartSpan(r.Context(), "feed.read",
		observability.AttrFeedName.String(def.Name),
		observability.AttrCacheKey.String(def.CacheKey),
	)
	defer span.End()

	result, err := h.Svc.FetchWithCache(ctx, def.CacheKey, def.TTL, func(ctx context.Context) (*feed.Batch, error) {
		return feed.FetchAll(ctx, def.Fetcher, def.MaxItems, def.MaxRequests)
	})
	if err != nil {
		observability.SetSpanError(span, err)
		h.writeFeedError(w, def.Name, err)
		return
	}

	span.SetAttributes(
		observability.AttrCacheSource.String(string(result.Source)),
		observability.AttrItemCount.Int(result.ItemCount),
	)
	metrics.Global().RecordFeedRequest(def.Name, string(result.Source))

	env := Envelope{
		Meta: &Meta{
			Cached:    result.Cached,
			PostCount: result.ItemCount,
			ExpiresIn: expiresIn(result.ExpiresIn),
		},
	}
	if result.Raw != nil {
		env.Data = result.Raw
	} else {
		env.Data = result.Items
	}

	switch result.Source {
	case feed.SourceCache:
		env.Status = StatusOKCached
		env.Meta.Source = "redis-cache"
	case feed.SourceFallback:
		env.Status = StatusOKFallback
		env.Meta.Source = "redis-cache-fallback"
		if result.FetchErr != nil {
			env.Message = "upstream unavailable, serving last cached data"
			env.Meta.Error = result.FetchErr.Error()
			logging.Op().Warn("serving fallback feed data",
				"feed", def.Name,
				"trace_id", observability.GetTraceID(ctx),
				"error", result.FetchErr)
		}
	default:
		env.Status = StatusOK
		env.Meta.Source = def.Name + "-api"
		if result.ItemCount > 0 {
			// Empty batches are served but never written to the cache.
			env.Meta.CacheStatus = "set"
		}
	}
	writeJSON(w, http.StatusOK, env)
}

// writeFeedError maps a failed cold fetch to the wire: rate limits keep
// their retry hint, upstream failures keep the provider's error body.
func (h *FeedHandler) writeFeedError(w http.ResponseWriter, name string, err error) {
	var rle *feed.RateLimitError
	if errors.As(err, &rle) {
		writeJSON(w, http.StatusTooManyRequests, Envelope{
			Status:  StatusRateLimited,
			Message: "upstream rate limit exceeded, please retry later",
			Data: map[string]any{
				"retryAfterSeconds": int(rle.RetryAfter.Seconds()),
				"resetTime":         rle.ResetAt.UTC().Format(time.RFC3339),
			},
		})
		return
	}

	var ue *feed.UpstreamError
	if errors.As(err, &ue) {
		writeJSON(w, http.StatusInternalServerError, Envelope{
			Status:  StatusServerError,
			Message: "failed to fetch " + name + " feed",
			Error:   &ErrorBody{Message: ue.Message, APIError: ue.APIError},
		})
		return
	}

	logging.Op().Error("feed request failed", "feed", name, "error", err)
	writeJSON(w, http.StatusInternalServerError, Envelope{
		Status:  StatusServerError,
		Message: "failed to fetch " + name + " feed",
		Error:   &ErrorBody{Message: err.Error()},
	})
}
