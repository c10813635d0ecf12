package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/deskmesh/logging"
)

const defaultLimit = 5

// Options configure the HTTPClient.
type Options struct {
	// Endpoint is the search API URL. Required.
	Endpoint string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Timeout bounds each individual attempt. Defaults to 10s.
	Timeout time.Duration
	// MaxAttempts bounds retries for retryable failures. Defaults to 3.
	MaxAttempts int
	// BackoffBase is the delay before retry k scaled by 2^k. Defaults to 500ms.
	BackoffBase time.Duration
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
	// Logger receives attempt-level diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// HTTPClient calls a remote JSON search API implementing Client. Retryable
// failures (429, 5xx, timeouts, transport errors) are retried with
// exponential backoff; a 401 aborts immediately.
type HTTPClient struct {
	opts   Options
	client *http.Client
	logger logging.Logger
}

// NewHTTPClient constructs an HTTPClient for the given endpoint.
func NewHTTPClient(endpoint string, optFns ...func(o *Options)) *HTTPClient {
	opts := Options{
		Endpoint:    endpoint,
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &HTTPClient{opts: opts, client: client, logger: logger}
}

type searchPayload struct {
	Results []struct {
		Title   string   `json:"title"`
		URL     string   `json:"url"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

// Search implements Client. It validates the query, executes up to
// MaxAttempts requests with exponential backoff and classifies failures.
// Individual malformed results are dropped rather than failing the call.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Kind: KindInvalidQuery, Err: errors.New("query must not be empty")}
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	var lastErr *Error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.opts.BackoffBase * time.Duration(1<<attempt)
			c.logger.Debug("retrying search", "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		results, err := c.doRequest(ctx, query, limit)
		if err == nil {
			return results, nil
		}

		var serr *Error
		if !errors.As(err, &serr) {
			serr = &Error{Kind: KindNetworkError, Err: err}
		}
		lastErr = serr

		if !serr.Retryable() {
			c.logger.Error("search failed fatally", "kind", string(serr.Kind), "error", serr.Error())
			return nil, serr
		}

		c.logger.Warn("search attempt failed", "attempt", attempt+1, "kind", string(serr.Kind))
	}

	return nil, lastErr
}

func (c *HTTPClient) doRequest(ctx context.Context, query string, limit int) ([]Result, error) {
	reqURL, err := buildURL(c.opts.Endpoint, query, limit)
	if err != nil {
		return nil, &Error{Kind: KindInvalidQuery, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetworkError, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindNetworkError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindInvalidCredentials, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindServiceError, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindServiceError, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetworkError, Err: err}
	}

	var payload searchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindServiceError, Err: fmt.Errorf("malformed response body: %w", err)}
	}

	results := make([]Result, 0, len(payload.Results))
	for _, raw := range payload.Results {
		// Drop malformed items instead of failing the whole call.
		if raw.Title == "" || raw.URL == "" || raw.Content == "" {
			continue
		}
		r := Result{Title: raw.Title, URL: raw.URL, Content: raw.Content}
		if raw.Score != nil {
			r.Score = *raw.Score
			r.HasScore = true
		}
		results = append(results, r)
	}

	return results, nil
}

func buildURL(endpoint, query string, limit int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
