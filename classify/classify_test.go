package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) (*Classifier, *model.MockBackend) {
	t.Helper()
	engine, err := prompt.NewEngine(nil)
	require.NoError(t, err)
	backend := model.NewMockBackend()
	return New(backend, engine), backend
}

func rcFor(text string) *core.RunContext {
	return core.NewRunContext(context.Background(), core.NewID(), core.Message{Text: text, SenderID: "u1"}, nil)
}

func TestKeywordRulesAreDeterministic(t *testing.T) {
	c, backend := newTestClassifier(t)

	cases := map[string]core.Category{
		"Can you research the history of WebAssembly for me please?": core.CategoryResearch,
		"I want to open a ticket, my invoice is wrong":               core.CategoryTicket,
		"Here is a stack trace from my service, what is going on?":   core.CategoryCode,
		"The dashboard is not working since the last deploy":         core.CategorySupport,
		"What is the difference between a VPS and a container here?": core.CategoryKnowledge,
	}

	for msg, want := range cases {
		for i := 0; i < 3; i++ {
			assert.Equal(t, want, c.Classify(rcFor(msg)), msg)
		}
	}

	assert.Zero(t, backend.CallCount(), "keyword matches must not consult the backend")
}

func TestRuleOrderEncodesPriority(t *testing.T) {
	c, _ := newTestClassifier(t)

	// Contains both research and support cues; research rules come first.
	got := c.Classify(rcFor("please research why my deploy keeps failing with an error"))
	assert.Equal(t, core.CategoryResearch, got)

	// Ticket beats support.
	got = c.Classify(rcFor("open a ticket, the export is broken"))
	assert.Equal(t, core.CategoryTicket, got)
}

func TestShortMessagesShortCircuitToConversation(t *testing.T) {
	c, backend := newTestClassifier(t)

	assert.Equal(t, core.CategoryConversation, c.Classify(rcFor("nice weather today")))
	assert.Zero(t, backend.CallCount())
}

func TestGreetingsShortCircuitToConversation(t *testing.T) {
	c, backend := newTestClassifier(t)

	greetings := []string{
		"hello there, I hope you are doing well on this lovely long day today",
		"good morning everyone, what a wonderful start into the week we have here",
	}
	for _, g := range greetings {
		assert.Equal(t, core.CategoryConversation, c.Classify(rcFor(g)), g)
	}
	assert.Zero(t, backend.CallCount())
}

func TestBackendFallbackParsesCategory(t *testing.T) {
	c, backend := newTestClassifier(t)
	backend.AddContainsResponse("Classify the following user message", "Research")

	long := "I would like to understand the complete landscape of observability vendors in depth"
	assert.Equal(t, core.CategoryResearch, c.Classify(rcFor(long)))
	assert.Equal(t, 1, backend.CallCount())
}

func TestBackendFallbackToleratesChattyOutput(t *testing.T) {
	c, backend := newTestClassifier(t)
	backend.AddContainsResponse("Classify the following user message", "Category: knowledge, because the user asks a factual question")

	long := "Could someone walk me through the general idea behind eventual consistency models?"
	assert.Equal(t, core.CategoryKnowledge, c.Classify(rcFor(long)))
}

func TestBackendErrorDefaultsToConversation(t *testing.T) {
	c, backend := newTestClassifier(t)
	backend.FailWith(errors.New("quota exceeded"))

	long := "There are many considerations one could weigh regarding this particular topic overall"
	assert.Equal(t, core.CategoryConversation, c.Classify(rcFor(long)))
}

func TestUnparseableBackendOutputDefaultsToConversation(t *testing.T) {
	c, backend := newTestClassifier(t)
	backend.AddContainsResponse("Classify the following user message", "I am not sure what this belongs to")

	long := "Some extended musing about nothing in particular that goes past the length limit"
	assert.Equal(t, core.CategoryConversation, c.Classify(rcFor(long)))
}
