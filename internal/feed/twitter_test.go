package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

const twitterSearchBody = `{
	"data": [
		{"id": "111", "text": "go generics are fine actually", "author_id": "u1", "created_at": "2024-01-15T10:30:00Z", "public_metrics": {"like_count": 12, "retweet_count": 3, "reply_count": 5}},
		{"id": "222", "text": "no metrics on this one"}
	],
	"meta": {"next_token": "tok123"}
}`

func TestTwitterFetcher_NormalizesTweets(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, twitterSearchBody)
	}))
	defer srv.Close()

	f := NewTwitterFetcher(TwitterConfig{BaseURL: srv.URL, BearerToken: "secret-token"})

	batch, err := f.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Fatalf("bearer credential not sent, got %q", gotAuth)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch.Items))
	}

	first := batch.Items[0]
	if first.ID != "111" || first.Text != "go generics are fine actually" || first.Author != "u1" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.URL != "https://twitter.com/i/status/111" {
		t.Fatalf("unexpected permalink: %s", first.URL)
	}
	if first.Metrics.Likes != 12 || first.Metrics.Reposts != 3 {
		t.Fatalf("unexpected metrics: %+v", first.Metrics)
	}

	// Tweet without public_metrics or created_at falls back to zero
	// values instead of failing.
	second := batch.Items[1]
	if second.Metrics != (Metrics{}) || !second.CreatedAt.IsZero() {
		t.Fatalf("expected zero defaults, got %+v", second)
	}

	if batch.Cursor != "tok123" {
		t.Fatalf("expected next_token cursor, got %q", batch.Cursor)
	}
}

func TestTwitterFetcher_RateLimited(t *testing.T) {
	reset := time.Now().Add(10 * time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewTwitterFetcher(TwitterConfig{BaseURL: srv.URL, BearerToken: "t"})
	_, err := f.FetchPage(context.Background(), "")

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got: %v", err)
	}
	// 10s until reset plus the 5s margin, minus a little test slack.
	if rle.RetryAfter < 13*time.Second || rle.RetryAfter > 16*time.Second {
		t.Fatalf("expected retry-after of roughly 15s, got %v", rle.RetryAfter)
	}
	if rle.ResetAt.Unix() != reset.Unix() {
		t.Fatalf("expected reset at %v, got %v", reset, rle.ResetAt)
	}
}

func TestTwitterFetcher_RateLimitedResetInPast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewTwitterFetcher(TwitterConfig{BaseURL: srv.URL, BearerToken: "t"})
	_, err := f.FetchPage(context.Background(), "")

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got: %v", err)
	}
	// Elapsed reset clamps to zero before the margin is added.
	if rle.RetryAfter < rateLimitMargin || rle.RetryAfter > rateLimitMargin+time.Second {
		t.Fatalf("expected retry-after near the %v margin, got %v", rateLimitMargin, rle.RetryAfter)
	}
}

func TestTwitterFetcher_RateLimitedWithoutHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewTwitterFetcher(TwitterConfig{BaseURL: srv.URL, BearerToken: "t"})
	_, err := f.FetchPage(context.Background(), "")

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got: %v", err)
	}
	if rle.RetryAfter <= 0 {
		t.Fatalf("retry-after must be positive even without headers, got %v", rle.RetryAfter)
	}
}

func TestTwitterFetcher_PassesCursor(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("next_token")
		fmt.Fprint(w, `{"data": [], "meta": {}}`)
	}))
	defer srv.Close()

	f := NewTwitterFetcher(TwitterConfig{BaseURL: srv.URL, BearerToken: "t"})
	if _, err := f.FetchPage(context.Background(), "tok-prev"); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if gotToken != "tok-prev" {
		t.Fatalf("cursor not forwarded, got next_token=%q", gotToken)
	}
}

func TestNewRateLimitError_RetryAfterHeader(t *testing.T) {
	hdr := http.Header{}
	hdr.Set("Retry-After", "30")

	rle := newRateLimitError("twitter", hdr, time.Now())
	if rle.RetryAfter != 30*time.Second+rateLimitMargin {
		t.Fatalf("expected 35s, got %v", rle.RetryAfter)
	}
}
