package agent

import (
	"testing"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupportAgent(t *testing.T, knowledge *fakeKnowledge) (*SupportAgent, *model.MockBackend, *fakeDelegate) {
	t.Helper()
	backend := model.NewMockBackend()
	delegate := &fakeDelegate{response: core.Response{Content: "ticket opened"}}
	return NewSupportAgent(backend, newEngine(t), knowledge, delegate), backend, delegate
}

func TestSeverityScore(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"how do i change my avatar", 0},
		{"I hit an error during signup", 1},
		{"the service is broken and keeps crashing with an error", 3},
		{"production outage, data loss, cannot access anything", 5},
		{"what is an error log, just wondering", 0},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SeverityScore(tc.text), tc.text)
	}
}

func TestSupportHighSeverityEscalates(t *testing.T) {
	a, _, delegate := newSupportAgent(t, &fakeKnowledge{})

	resp, err := a.Process(rcFor("production outage, data loss, cannot access anything"))
	require.NoError(t, err)

	assert.Equal(t, 1, delegate.callCount())
	assert.Equal(t, "ticket opened", resp.Content)
	assert.Equal(t, 5, resp.Metadata["severity"])
}

func TestSupportExplicitTicketPhrasingEscalates(t *testing.T) {
	a, _, delegate := newSupportAgent(t, &fakeKnowledge{})

	_, err := a.Process(rcFor("please open a ticket for my login problem"))
	require.NoError(t, err)
	assert.Equal(t, 1, delegate.callCount())
}

func TestSupportMidSeverityConfirmsWithBackend(t *testing.T) {
	a, backend, delegate := newSupportAgent(t, &fakeKnowledge{})
	backend.AddContainsResponse("Should a support ticket be opened", "yes")

	_, err := a.Process(rcFor("the export keeps failing with an error"))
	require.NoError(t, err)
	assert.Equal(t, 1, delegate.callCount(), "a yes confirmation must escalate")
}

func TestSupportMidSeverityDeclinedConfirmationAnswers(t *testing.T) {
	knowledge := &fakeKnowledge{entries: []core.KnowledgeEntry{
		verifiedEntry("kb-1", "Export failures", "Retry exports after clearing the filter state."),
	}}
	a, backend, delegate := newSupportAgent(t, knowledge)
	backend.AddContainsResponse("Should a support ticket be opened", "no")
	backend.AddContainsResponse("You are a support engineer", "Clear the filter state and retry.")

	resp, err := a.Process(rcFor("the export keeps failing with an error"))
	require.NoError(t, err)

	assert.Zero(t, delegate.callCount())
	assert.Equal(t, "Clear the filter state and retry.", resp.Content)
}

func TestSupportNoKnowledgeSignalsResearch(t *testing.T) {
	a, _, delegate := newSupportAgent(t, &fakeKnowledge{})

	resp, err := a.Process(rcFor("my webhook deliveries look odd lately"))
	require.NoError(t, err)

	assert.Zero(t, delegate.callCount())
	assert.True(t, resp.NeedsResearch)
	assert.NotEmpty(t, resp.SearchQuery)
}

func TestSupportAugmentedCallAnswersFromResearch(t *testing.T) {
	a, backend, _ := newSupportAgent(t, &fakeKnowledge{})
	backend.AddContainsResponse("You are a support engineer", "Webhooks retry five times with backoff.")

	resp, err := a.Process(rcWithVars("my webhook deliveries look odd lately", map[string]any{
		"research_results": "Webhook retry docs say five attempts.",
	}))
	require.NoError(t, err)

	assert.False(t, resp.NeedsResearch, "a second research signal would loop")
	assert.Equal(t, "Webhooks retry five times with backoff.", resp.Content)
}

func TestSupportKnowledgeHitAnswersDirectly(t *testing.T) {
	knowledge := &fakeKnowledge{entries: []core.KnowledgeEntry{
		verifiedEntry("kb-1", "Webhook retries", "Deliveries retry five times with exponential backoff."),
	}}
	a, backend, _ := newSupportAgent(t, knowledge)
	backend.AddContainsResponse("You are a support engineer", "Check the retry schedule.")

	resp, err := a.Process(rcFor("my webhook deliveries look odd lately"))
	require.NoError(t, err)

	assert.False(t, resp.NeedsResearch)
	assert.Equal(t, "Check the retry schedule.", resp.Content)

	// The knowledge findings must have been handed to the backend.
	var answerPrompt string
	for _, p := range backend.Prompts() {
		if len(p) > 0 {
			answerPrompt = p
		}
	}
	assert.Contains(t, answerPrompt, "Webhook retries")
}

func TestSupportKnowledgeFailureStillAnswers(t *testing.T) {
	knowledge := &fakeKnowledge{searchErr: assert.AnError}
	a, backend, _ := newSupportAgent(t, knowledge)
	backend.AddContainsResponse("You are a support engineer", "Here's a general suggestion.")

	resp, err := a.Process(rcFor("my webhook deliveries look odd lately"))
	require.NoError(t, err)
	assert.False(t, resp.Error)
	assert.Equal(t, "Here's a general suggestion.", resp.Content)
}
