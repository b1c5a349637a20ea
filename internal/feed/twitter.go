package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/feedgate/feedgate/internal/metrics"
	"github.com/feedgate/feedgate/internal/observability"
)

const (
	defaultTwitterBaseURL  = "https://api.twitter.com"
	defaultTwitterQuery    = "#technology"
	defaultTwitterTimeout  = 5 * time.Second
	defaultTwitterPageSize = 10

	// rateLimitMargin is added on top of the provider's reset hint so a
	// retry at the suggested time does not race the limiter window.
	rateLimitMargin = 5 * time.Second
)

// TwitterConfig configures the recent-search fetcher.
type TwitterConfig struct {
	BaseURL     string        // default: https://api.twitter.com
	BearerToken string        // app-only bearer credential
	Query       string        // search query, default: #technology
	PageSize    int           // max_results per page, default: 10
	Timeout     time.Duration // per-request timeout, default: 5s
}

// TwitterFetcher fetches recent tweets matching a query as normalized
// feed items.
type TwitterFetcher struct {
	cfg    TwitterConfig
	client *http.Client
}

// NewTwitterFetcher creates a Twitter recent-search fetcher.
func NewTwitterFetcher(cfg TwitterConfig) *TwitterFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwitterBaseURL
	}
	if cfg.Query == "" {
		cfg.Query = defaultTwitterQuery
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultTwitterPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTwitterTimeout
	}
	return &TwitterFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *TwitterFetcher) Name() string { return "twitter" }

type twitterSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics *struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// FetchPage issues one recent-search request. cursor is the API's
// next_token.
func (f *TwitterFetcher) FetchPage(ctx context.Context, cursor string) (*Batch, error) {
	q := url.Values{}
	q.Set("query", f.cfg.Query)
	q.Set("max_results", strconv.Itoa(f.cfg.PageSize))
	q.Set("tweet.fields", "created_at,author_id,public_metrics")
	if cursor != "" {
		q.Set("next_token", cursor)
	}
	u := f.cfg.BaseURL + "/2/tweets/search/recent?" + q.Encode()

	ctx, span := observability.StartClientSpan(ctx, "twitter.fetch",
		observability.AttrFeedName.String(f.Name()))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: err.Error()})
	}
	req.Header.Set("Authorization", "Bearer "+f.cfg.BearerToken)

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

	var search twitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, spanFail(span, &UpstreamError{Provider: f.Name(), Message: "invalid Twitter API response: " + err.Error()})
	}

	batch := &Batch{Cursor: search.Meta.NextToken, RequestCount: 1}
	for _, tw := range search.Data {
		item := Item{
			ID:     tw.ID,
			Text:   tw.Text,
			URL:    "https://twitter.com/i/status/" + tw.ID,
			Author: tw.AuthorID,
		}
		if tw.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
				item.CreatedAt = ts
			}
		}
		if tw.PublicMetrics != nil {
			item.Metrics = Metrics{
				Likes:    tw.PublicMetrics.LikeCount,
				Reposts:  tw.PublicMetrics.RetweetCount,
				Comments: tw.PublicMetrics.ReplyCount,
			}
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}

// newRateLimitError builds a RateLimitError from provider rate limit
// headers. The reset-epoch header takes precedence; Retry-After seconds
// are the fallback. The wait always includes rateLimitMargin.
func newRateLimitError(provider string, hdr http.Header, now time.Time) *RateLimitError {
	if v := hdr.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			resetAt := time.Unix(epoch, 0)
			wait := resetAt.Sub(now)
			if wait < 0 {
				wait = 0
			}
			return &RateLimitError{Provider: provider, RetryAfter: wait + rateLimitMargin, ResetAt: resetAt}
		}
	}
	if v := hdr.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return &RateLimitError{
				Provider:   provider,
				RetryAfter: time.Duration(secs)*time.Second + rateLimitMargin,
				ResetAt:    now.Add(time.Duration(secs) * time.Second),
			}
		}
	}
	return &RateLimitError{Provider: provider, RetryAfter: rateLimitMargin, ResetAt: now.Add(rateLimitMargin)}
}
