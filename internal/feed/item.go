// Package feed implements the social feed plane: provider fetchers that
// normalize upstream payloads into a common item shape, a bounded
// pagination driver, and the read-through cache service that ties
// fetchers to the cache with fallback-on-error semantics.
package feed

import "time"

// Metrics holds the engagement counters a provider reports for an item.
// Counters a provider does not expose stay zero.
type Metrics struct {
	Upvotes  int `json:"upvotes,omitempty"`
	Likes    int `json:"likes,omitempty"`
	Reposts  int `json:"reposts,omitempty"`
	Comments int `json:"comments,omitempty"`
}

// Item is one normalized entry of a social feed. Provider-specific
// payloads are mapped into this shape at fetch time; optional upstream
// fields missing from a payload default to zero values rather than
// propagating nulls.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text,omitempty"`
	URL       string    `json:"url"`
	Author    string    `json:"author,omitempty"`
	Subreddit string    `json:"subreddit,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Metrics   Metrics   `json:"metrics,omitzero"`
}

// Batch is the result of one or more upstream page fetches.
type Batch struct {
	Items []Item
	// Cursor is the provider's continuation token; empty when the
	// listing is exhausted.
	Cursor string
	// RequestCount is the number of upstream HTTP calls consumed.
	RequestCount int
}
