package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/feedgate/feedgate/internal/metrics"
	"github.com/feedgate/feedgate/internal/observability"
)

const (
	defaultRedditBaseURL = "https://www.reddit.com"
	defaultRedditListing = "popular"
	defaultRedditTimeout = 3 * time.Second
)

// RedditConfig configures the Reddit listing fetcher.
type RedditConfig struct {
	BaseURL   string        // default: https://www.reddit.com
	Listing   string        // subreddit or aggregate listing, default: popular
	UserAgent string        // required by Reddit; "web:app:version (by /u/name)" format
	PageSize  int           // items requested per page, default: 25
	Timeout   time.Duration // per-request timeout, default: 3s
}

// RedditFetcher fetches a subreddit listing as normalized feed items.
type RedditFetcher struct {
	cfg    RedditConfig
	client *http.Client
}

// NewRedditFetcher creates a Reddit fetcher. An http.Client with the
// configured timeout is created once and shared across requests.
func NewRedditFetcher(cfg RedditConfig) *RedditFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRedditBaseURL
	}
	if cfg.Listing == "" {
		cfg.Listing = defaultRedditListing
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedditTimeout
	}
	return &RedditFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *RedditFetcher) Name() string { return "reddit" }

// redditListing mirrors the slice of the Reddit listing payload we read.
type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data *struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Permalink  string  `json:"permalink"`
				Author     string  `json:"author"`
				Subreddit  string  `json:"subreddit"`
				Ups        int     `json:"ups"`
				NumComment int     `json:"num_comments"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchPage issues one listing request. cursor is Reddit's "after" token.
func (f *RedditFetcher) FetchPage(ctx context.Context, cursor string) (*Batch, error) {
	u := fmt.Sprintf("%s/r/%s.json?limit=%d", f.cfg.BaseURL, url.PathEscape(f.cfg.Listing), f.cfg.PageSize)
	if cursor != "" {
		u += "&after=" + url.QueryEscape(cursor)
	}

	ctx, span := observability.StartClientSpan(ctx, "reddit.fetch",
		observability.AttrFeedName.String(f.Name()))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: err.Error()})
	}
	// Reddit rejects requests without an identifying agent string.
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.Global().ObserveUpstreamRequest(f.Name(), 0, time.Since(start))
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: err.Error()})
	}
	defer resp.Body.Close()
	metrics.Global().ObserveUpstreamRequest(f.Name(), resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.Global().RecordRateLimited(f.Name())
		return nil, spanFail(span, newRateLimitError(f.Name(), resp.Header, time.Now()))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, spanFail(span, upstreamErrorFromResponse(f.Name(), resp))
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: "invalid Reddit API response: " + err.Error()})
	}
	if listing.Data.Children == nil {
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: "invalid Reddit API response: missing listing data"})
	}

	batch := &Batch{Cursor: listing.Data.After, RequestCount: 1}
	for _, child := range listing.Data.Children {
		// Entries without an underlying payload carry no identity; skip
		// them instead of emitting partial items.
		if child.Data == nil {
			continue
		}
		d := child.Data
		item := Item{
			ID:        d.ID,
			Title:     d.Title,
			URL:       "https://reddit.com" + d.Permalink,
			Author:    d.Author,
			Subreddit: d.Subreddit,
			Metrics:   Metrics{Upvotes: d.Ups, Comments: d.NumComment},
		}
		if d.CreatedUTC > 0 {
			item.CreatedAt = time.Unix(int64(d.CreatedUTC), 0).UTC()
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}

func upstreamErrorFromResponse(provider string, resp *http.Response) *UpstreamError {
	e := &UpstreamError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("unexpected status %s", resp.Status),
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && json.Valid(body) {
		e.APIError = body
	}
	return e
}
