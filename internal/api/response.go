// Package api exposes the HTTP surface: feed reads, account
// management, and health probes.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/feedgate/feedgate/internal/logging"
)

// Response statuses. Cached and fallback serves are distinguished so
// clients can tell fresh data from stale.
const (
	StatusOK           = "OK"
	StatusOKCached     = "OK (CACHED)"
	StatusOKFallback   = "OK (FALLBACK CACHE)"
	StatusRateLimited  = "RATE_LIMITED"
	StatusServerError  = "SERVER_ERROR"
	StatusBadRequest   = "BAD_REQUEST"
	StatusNotFound     = "NOT_FOUND"
	StatusUnauthorized = "UNAUTHORIZED"
	StatusForbidden    = "FORBIDDEN"
	StatusConflict     = "CONFLICT"
)

// Envelope is the uniform response shape for every API endpoint.
type Envelope struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Meta reports where the served data came from: "<provider>-api" for a
// fresh fetch, "redis-cache" for a hit, "redis-cache-fallback" when a
// stale copy covered an upstream failure.
type Meta struct {
	Source      string `json:"source,omitempty"`
	Cached      bool   `json:"cached,omitempty"`
	CacheStatus string `json:"cacheStatus,omitempty"`
	PostCount   int    `json:"postCount,omitempty"`
	ExpiresIn   string `json:"expiresIn,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ErrorBody carries error detail, including the upstream provider's raw
// error payload when one was captured.
type ErrorBody struct {
	Message  string          `json:"message"`
	APIError json.RawMessage `json:"apiError,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Op().Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, Envelope{Status: status, Message: message})
}

// expiresIn renders a remaining lifetime as whole seconds for clients.
func expiresIn(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d seconds", secs)
}
