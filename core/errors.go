package core

import (
	"fmt"
	"time"
)

// ValidationError reports rejected input. It is surfaced to the caller
// verbatim and never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError for a named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitError reports a rejected admission check together with an
// estimate of how long the caller should wait before retrying.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Action, e.RetryAfter.Round(time.Second))
}

// BackendError reports a language-backend failure (quota, timeout or a
// malformed completion). Narrow helper calls may retry or fall back; a full
// Process call never retries at the top level.
type BackendError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("backend failure (%s)", e.Reason)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *BackendError) Unwrap() error { return e.Err }

// ParseError reports malformed structured output from the backend. Agents
// must substitute a deterministic fallback value instead of propagating it.
type ParseError struct {
	What string
	Raw  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %s from backend output", e.What)
}
