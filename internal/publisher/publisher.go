package publisher

import (
	"context"
	"fmt"
)

// Content is the decoded publish payload. AccountID is the platform-side
// identity to post as (page id, IG business account id, LinkedIn URN);
// which field each adapter needs is the adapter's business.
type Content struct {
	AccountID string   `json:"account_id,omitempty"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls,omitempty"`
	LinkURL   string   `json:"link_url,omitempty"`
}

// Result identifies the created remote post.
type Result struct {
	RemoteID string `json:"remote_id"`
	URL      string `json:"url,omitempty"`
}

// Error is a structured publish failure carrying the platform HTTP status,
// which drives retry classification.
type Error struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s publish failed (status %d): %s", e.Platform, e.StatusCode, e.Message)
}

type Class int

const (
	// ClassTransient errors are expected to resolve on retry: rate limits,
	// server errors, timeouts.
	ClassTransient Class = iota
	// ClassAuth errors mean the token was rejected; worth one refresh-then-
	// retry before giving up.
	ClassAuth
	// ClassPermanent errors will not be fixed by retrying.
	ClassPermanent
)

// Classify buckets a publish error by its HTTP status.
func (e *Error) Classify() Class {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ClassAuth
	case e.StatusCode == 429 || e.StatusCode >= 500:
		return ClassTransient
	case e.StatusCode >= 400:
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// Publisher is one platform adapter. Adding a platform means adding one
// implementation and registering it; nothing else changes.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, accessToken string, content Content) (*Result, error)
}
