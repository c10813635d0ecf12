package agent

import (
	"testing"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodeAgent(t *testing.T) (*CodeAnalysisAgent, *model.MockBackend) {
	t.Helper()
	backend := model.NewMockBackend()
	return NewCodeAnalysisAgent(backend, newEngine(t)), backend
}

const codeMessage = "please review this for security issues\n```go\nfunc handler(w http.ResponseWriter, r *http.Request) {\n\tdb.Exec(\"SELECT * FROM users WHERE id = \" + r.URL.Query().Get(\"id\"))\n}\n```"

func TestCodeAnalysisCanHandle(t *testing.T) {
	a, _ := newCodeAgent(t)

	assert.True(t, a.CanHandle(core.Message{Text: "analyze this function"}))
	assert.True(t, a.CanHandle(core.Message{Text: "here you go\n```\nx := 1\n```"}))
	assert.False(t, a.CanHandle(core.Message{Text: "what's for lunch"}))
}

func TestCodeAnalysisRunsSelectedKind(t *testing.T) {
	a, backend := newCodeAgent(t)
	backend.AddContainsResponse("Pick the single most fitting analysis kind", "security")
	backend.AddContainsResponse("Review the code below for security vulnerabilities",
		`{"findings": [{"kind": "sql-injection", "severity": "high", "detail": "query concatenates user input"}], "summary": "One critical injection risk."}`)

	resp, err := a.Process(rcFor(codeMessage))
	require.NoError(t, err)

	assert.False(t, resp.Error)
	assert.Equal(t, "security", resp.Metadata["analysis_kind"])
	assert.Contains(t, resp.Content, "Security review")
	assert.Contains(t, resp.Content, "One critical injection risk.")
	assert.Contains(t, resp.Content, "sql-injection")
}

func TestCodeAnalysisMissingCodeGivesGuidance(t *testing.T) {
	a, backend := newCodeAgent(t)
	backend.AddContainsResponse("Pick the single most fitting analysis kind", "memory")

	resp, err := a.Process(rcFor("can you check my app for memory leaks?"))
	require.NoError(t, err)

	assert.False(t, resp.Error, "missing input is guidance, not an error")
	assert.Equal(t, "memory", resp.Metadata["analysis_kind"])
	assert.Contains(t, resp.Content, "profiling")
	assert.Equal(t, 1, backend.CallCount(), "no analysis call without input")
}

func TestCodeAnalysisKindSelectionFallsBackToHeuristic(t *testing.T) {
	a, backend := newCodeAgent(t)
	backend.FailWith(assert.AnError)

	resp, err := a.Process(rcFor("why is this so slow? no code handy"))
	require.NoError(t, err)
	assert.Equal(t, "performance", resp.Metadata["analysis_kind"])

	resp, err = a.Process(rcFor("random request without hints"))
	require.NoError(t, err)
	assert.Equal(t, "static", resp.Metadata["analysis_kind"])
}

func TestCodeAnalysisUnparseableOutputPassesThrough(t *testing.T) {
	a, backend := newCodeAgent(t)
	backend.AddContainsResponse("Pick the single most fitting analysis kind", "static")
	backend.AddContainsResponse("Perform a static analysis", "The code looks fine overall, nothing structured to report.")

	resp, err := a.Process(rcFor("analyze\n```\nx := 1\n```"))
	require.NoError(t, err)

	assert.False(t, resp.Error)
	assert.Equal(t, "The code looks fine overall, nothing structured to report.", resp.Content)
}

func TestExtractFencedContent(t *testing.T) {
	assert.Equal(t, "x := 1", extractFencedContent("before\n```go\nx := 1\n```\nafter"))
	assert.Equal(t, "x := 1", extractFencedContent("```\nx := 1\n```"))
	assert.Empty(t, extractFencedContent("no fences here"))
	// Unterminated fences still yield their body.
	assert.Equal(t, "dangling", extractFencedContent("```\ndangling"))
}
