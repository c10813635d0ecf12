package agent

import (
	"strings"
	"testing"

	"github.com/hupe1980/deskmesh/cache"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResearchAgent(t *testing.T, client *fakeSearch) (*ResearchAgent, *model.MockBackend) {
	t.Helper()
	backend := model.NewMockBackend()
	return NewResearchAgent(backend, newEngine(t), client, cache.New()), backend
}

func scoredResults() []search.Result {
	return []search.Result{
		{Title: "Raft explained", URL: "https://example.com/raft", Content: "Raft elects a leader per term.", Score: 0.9, HasScore: true},
		{Title: "Consensus overview", URL: "https://example.com/consensus", Content: "Consensus keeps replicas agreeing.", Score: 0.7, HasScore: true},
		{Title: "Unscored extra", URL: "https://example.com/extra", Content: "No score on this one."},
	}
}

func TestResearchFormatsResultsWithCitations(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, backend := newResearchAgent(t, client)

	resp, err := a.Process(rcFor("raft consensus"))
	require.NoError(t, err)

	assert.False(t, resp.Error)
	assert.Contains(t, resp.Content, "[1] **Raft explained**")
	assert.Contains(t, resp.Content, "[1] https://example.com/raft")
	assert.Equal(t, []string{"https://example.com/raft", "https://example.com/consensus", "https://example.com/extra"}, resp.Metadata["sources"])
	assert.InDelta(t, 0.8, resp.Metadata["confidence"].(float64), 0.001, "confidence averages scored results only")
	assert.Zero(t, backend.CallCount(), "short queries skip the optimization call")
}

func TestResearchCachesFindings(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, _ := newResearchAgent(t, client)

	first, err := a.Process(rcFor("raft consensus"))
	require.NoError(t, err)
	second, err := a.Process(rcFor("raft consensus"))
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Len(t, client.calls(), 1, "the repeat query must be served from cache")
}

func TestResearchOptimizesLongQueries(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, backend := newResearchAgent(t, client)
	backend.AddContainsResponse("Rewrite the following search query", "raft leader election")

	long := "could you please find out how leader election works in the raft consensus protocol family"
	_, err := a.Process(rcFor(long))
	require.NoError(t, err)

	require.Len(t, client.calls(), 1)
	assert.Equal(t, "raft leader election", client.calls()[0])
}

func TestResearchOptimizationFailureFallsBackToRawQuery(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, backend := newResearchAgent(t, client)
	backend.FailWith(assert.AnError)

	long := "could you please find out how leader election works in the raft consensus protocol family"
	resp, err := a.Process(rcFor(long))
	require.NoError(t, err)

	assert.False(t, resp.Error)
	require.Len(t, client.calls(), 1)
	assert.Contains(t, client.calls()[0], "leader election")
}

func TestResearchExplicitQueryVarWins(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, backend := newResearchAgent(t, client)

	_, err := a.Process(rcWithVars("research: whatever the user typed", map[string]any{VarResearchQuery: "etcd raft internals"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"etcd raft internals"}, client.calls())
	assert.Zero(t, backend.CallCount())
}

func TestResearchDirectModeAnnotatesSources(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, _ := newResearchAgent(t, client)

	resp, err := a.Process(rcWithVars("raft consensus", map[string]any{VarResearchDirect: "1"}))
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "## Research:")
	assert.Contains(t, resp.Content, "Relevance: 0.90")
	assert.Contains(t, resp.Content, "Overall confidence: 0.80")
}

func TestResearchModesDoNotShareCacheSlots(t *testing.T) {
	client := &fakeSearch{results: scoredResults()}
	a, _ := newResearchAgent(t, client)

	direct, err := a.Process(rcWithVars("raft consensus", map[string]any{VarResearchDirect: "1"}))
	require.NoError(t, err)
	require.Contains(t, direct.Content, "## Research:")

	synthesis, err := a.Process(rcWithVars("raft consensus", map[string]any{VarResearchQuery: "raft consensus"}))
	require.NoError(t, err)

	assert.NotContains(t, synthesis.Content, "## Research:")
	assert.NotContains(t, synthesis.Content, "Relevance:")
	assert.NotContains(t, synthesis.Content, "Overall confidence:")
	assert.Len(t, client.calls(), 2, "each mode fills its own cache slot")

	again, err := a.Process(rcWithVars("raft consensus", map[string]any{VarResearchQuery: "raft consensus"}))
	require.NoError(t, err)
	assert.Equal(t, synthesis.Content, again.Content)
	assert.Len(t, client.calls(), 2, "the repeat synthesis query is served from cache")
}

func TestResearchZeroResultsSuggestsRephrasing(t *testing.T) {
	client := &fakeSearch{}
	a, _ := newResearchAgent(t, client)

	resp, err := a.Process(rcFor("gibberish nobody indexed"))
	require.NoError(t, err)

	assert.False(t, resp.Error, "zero results are not a failure")
	assert.Contains(t, strings.ToLower(resp.Content), "rephras")
}

func TestResearchSearchFailureMapping(t *testing.T) {
	cases := []struct {
		kind search.ErrorKind
		want core.ErrorKind
	}{
		{search.KindRateLimited, core.ErrorKindRateLimit},
		{search.KindInvalidCredentials, core.ErrorKindSearch},
		{search.KindTimeout, core.ErrorKindSearch},
		{search.KindNetworkError, core.ErrorKindSearch},
		{search.KindServiceError, core.ErrorKindSearch},
	}

	for _, tc := range cases {
		client := &fakeSearch{err: &search.Error{Kind: tc.kind}}
		a, _ := newResearchAgent(t, client)

		resp, err := a.Process(rcFor("anything at all"))
		require.NoError(t, err, tc.kind)
		assert.True(t, resp.Error, tc.kind)
		assert.Equal(t, tc.want, resp.ErrorKind, tc.kind)
	}
}

func TestResearchEmptyQueryIsRejected(t *testing.T) {
	client := &fakeSearch{}
	a, _ := newResearchAgent(t, client)

	resp, err := a.Process(rcFor("   "))
	require.NoError(t, err)
	assert.True(t, resp.Error)
	assert.Equal(t, core.ErrorKindValidation, resp.ErrorKind)
	assert.Empty(t, client.calls())
}
