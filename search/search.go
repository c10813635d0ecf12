// Package search provides a resilient client for a remote search API with
// input validation, exponential backoff and typed error classification.
package search

import (
	"context"
	"fmt"
)

// ErrorKind classifies a search failure after retries are exhausted.
type ErrorKind string

const (
	// KindInvalidCredentials marks an authentication failure (HTTP 401).
	// It is fatal and never retried.
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	// KindRateLimited marks upstream throttling (HTTP 429).
	KindRateLimited ErrorKind = "rate_limited"
	// KindServiceError marks an upstream server failure (HTTP 5xx).
	KindServiceError ErrorKind = "service_error"
	// KindTimeout marks an exceeded request deadline.
	KindTimeout ErrorKind = "timeout"
	// KindNetworkError marks a transport failure with no HTTP response.
	KindNetworkError ErrorKind = "network_error"
	// KindInvalidQuery marks a rejected (empty) query. Never retried.
	KindInvalidQuery ErrorKind = "invalid_query"
)

// Error is a classified search failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("search failed (%s)", e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure kind may be retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindInvalidCredentials, KindInvalidQuery:
		return false
	}
	return true
}

// Result is a single search hit. Score is only meaningful when HasScore is
// true; some upstreams omit confidence scores.
type Result struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	HasScore bool    `json:"-"`
}

// Client is the interface consumed by agents needing external search.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
