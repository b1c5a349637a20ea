package api

import (
	"context"
	"net/http"
	"time"

	"github.com/feedgate/feedgate/internal/cache"
)

// Pinger is anything with a health check. The Postgres store satisfies
// it; cache.Cache embeds the same shape.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	Cache   cache.Cache
	Store   Pinger // nil in feed-only mode
	started time.Time
}

func NewHealthHandler(c cache.Cache, st Pinger) *HealthHandler {
	return &HealthHandler{Cache: c, Store: st, started: time.Now()}
}

// RegisterRoutes registers the health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
}

// Health handles GET /health - detailed component status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]bool{}
	healthy := true

	cacheOK := h.Cache.Ping(ctx) == nil
	components["cache"] = cacheOK
	healthy = healthy && cacheOK

	if h.Store != nil {
		storeOK := h.Store.Ping(ctx) == nil
		components["postgres"] = storeOK
		healthy = healthy && storeOK
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"components":     components,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// HealthLive handles GET /health/live - process liveness only
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - readiness to serve traffic
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Cache.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready", "reason": "cache unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
