package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingServer counts attempts and replays a scripted status sequence,
// serving the canned body once the script is exhausted.
type recordingServer struct {
	mu       sync.Mutex
	statuses []int
	body     string
	times    []time.Time
	queries  []string
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.queries = append(s.queries, r.URL.Query().Get("q"))
	var status int
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	} else {
		status = http.StatusOK
	}
	body := s.body
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *recordingServer) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.times)
}

const goodBody = `{"results":[
	{"title":"Nginx docs","url":"https://nginx.org","content":"Official documentation","score":0.92},
	{"title":"","url":"https://broken.example","content":"missing title"},
	{"title":"Config guide","url":"https://example.com/guide","content":"A guide"}
]}`

func newTestClient(t *testing.T, srv *recordingServer, optFns ...func(o *Options)) (*HTTPClient, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)
	fns := append([]func(o *Options){func(o *Options) { o.BackoffBase = 5 * time.Millisecond }}, optFns...)
	return NewHTTPClient(ts.URL, fns...), ts
}

func TestSearchSuccessDropsMalformedResults(t *testing.T) {
	srv := &recordingServer{body: goodBody}
	c, _ := newTestClient(t, srv)

	results, err := c.Search(context.Background(), "nginx config", 5)
	require.NoError(t, err)
	require.Len(t, results, 2, "malformed item must be dropped")

	assert.Equal(t, "Nginx docs", results[0].Title)
	assert.True(t, results[0].HasScore)
	assert.InDelta(t, 0.92, results[0].Score, 1e-9)
	assert.False(t, results[1].HasScore, "absent score must be distinguishable from zero")
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	srv := &recordingServer{body: goodBody}
	c, _ := newTestClient(t, srv)

	_, err := c.Search(context.Background(), "   ", 5)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalidQuery, serr.Kind)
	assert.Zero(t, srv.attempts(), "no request may be issued for an invalid query")
}

func TestSearchUnauthorizedIsFatal(t *testing.T) {
	srv := &recordingServer{statuses: []int{http.StatusUnauthorized}}
	c, _ := newTestClient(t, srv)

	_, err := c.Search(context.Background(), "anything", 5)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalidCredentials, serr.Kind)
	assert.Equal(t, 1, srv.attempts(), "401 must not be retried")
}

func TestSearchRetriesServerErrorsThenSucceeds(t *testing.T) {
	srv := &recordingServer{statuses: []int{http.StatusInternalServerError, http.StatusInternalServerError}, body: goodBody}
	c, _ := newTestClient(t, srv, func(o *Options) { o.BackoffBase = 10 * time.Millisecond })

	results, err := c.Search(context.Background(), "nginx", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	require.Equal(t, 3, srv.attempts())

	// Backoff delays must be non-decreasing and consistent with base*2^k.
	gap1 := srv.times[1].Sub(srv.times[0])
	gap2 := srv.times[2].Sub(srv.times[1])
	assert.GreaterOrEqual(t, gap1, 20*time.Millisecond)
	assert.GreaterOrEqual(t, gap2, 40*time.Millisecond)
	assert.GreaterOrEqual(t, gap2, gap1)
}

func TestSearchRateLimitedAfterExhaustedRetries(t *testing.T) {
	srv := &recordingServer{statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}}
	c, _ := newTestClient(t, srv)

	_, err := c.Search(context.Background(), "nginx", 5)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindRateLimited, serr.Kind)
	assert.Equal(t, 3, srv.attempts())
}

func TestSearchServiceErrorExhausted(t *testing.T) {
	srv := &recordingServer{statuses: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway}}
	c, _ := newTestClient(t, srv)

	_, err := c.Search(context.Background(), "nginx", 5)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindServiceError, serr.Kind)
}

func TestSearchNetworkError(t *testing.T) {
	srv := &recordingServer{}
	c, ts := newTestClient(t, srv)
	ts.Close()

	_, err := c.Search(context.Background(), "nginx", 5)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNetworkError, serr.Kind)
}

func TestSearchSendsQueryAndLimit(t *testing.T) {
	srv := &recordingServer{body: `{"results":[]}`}
	c, _ := newTestClient(t, srv)

	_, err := c.Search(context.Background(), "  how do I fix this  ", 3)
	require.NoError(t, err)
	require.Len(t, srv.queries, 1)
	assert.Equal(t, "how do I fix this", srv.queries[0], "query must be trimmed")
}

func TestErrorRetryable(t *testing.T) {
	assert.False(t, (&Error{Kind: KindInvalidCredentials}).Retryable())
	assert.False(t, (&Error{Kind: KindInvalidQuery}).Retryable())
	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.True(t, (&Error{Kind: KindServiceError}).Retryable())
	assert.True(t, (&Error{Kind: KindTimeout}).Retryable())
	assert.True(t, (&Error{Kind: KindNetworkError}).Retryable())
}
