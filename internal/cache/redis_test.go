package cache

import (
	"testing"
	"time"
)

func TestNormalizeTTL(t *testing.T) {
	// go-redis hands the -2/-1 Redis replies through as raw Durations.
	if _, err := normalizeTTL(time.Duration(-2)); err != ErrNotFound {
		t.Fatalf("missing key sentinel: expected ErrNotFound, got %v", err)
	}

	d, err := normalizeTTL(time.Duration(-1))
	if err != nil || d != 0 {
		t.Fatalf("no-expiry sentinel: expected (0, nil), got (%v, %v)", d, err)
	}

	d, err = normalizeTTL(90 * time.Second)
	if err != nil || d != 90*time.Second {
		t.Fatalf("live key: expected 90s, got (%v, %v)", d, err)
	}
}
