package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feedgate/feedgate/internal/auth"
)

// Middleware enforces rate limits per authenticated user or, for
// anonymous requests, per client IP. Exempt paths skip the check.
func Middleware(limiter *Limiter, exemptPaths []string) func(http.Handler) http.Handler {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			var key, tier string
			if id := auth.GetIdentity(r.Context()); id != nil {
				key = KeyForUser(id.UserID)
				tier = "user"
			} else {
				key = KeyForIP(clientIP(r))
				tier = "anonymous"
			}

			result, err := limiter.Allow(r.Context(), key, tier)
			if err != nil {
				// A broken limiter must not take the API down.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"status":"RATE_LIMITED","message":"too many requests, please retry later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isExemptPath(path string, exempt map[string]bool) bool {
	if exempt[path] {
		return true
	}
	for p := range exempt {
		if strings.HasSuffix(p, "/*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
		}
	}
	return false
}

// clientIP extracts the client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	ip = strings.TrimPrefix(ip, "[")
	return strings.TrimSuffix(ip, "]")
}
