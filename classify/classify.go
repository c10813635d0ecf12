// Package classify produces a request category for an inbound message.
//
// Classification is heuristic first: a fixed, ordered table of keyword rules
// is evaluated and the first match wins, so rule order encodes priority
// (research > ticket > code > support > knowledge). Short or greeting-like
// messages short-circuit to conversation. Only when no heuristic applies is
// a single backend call issued; any backend or parse failure silently
// resolves to conversation. Classify never returns an error.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
)

// shortMessageLimit is the length under which a message with no keyword
// match defaults to conversation without consulting the backend.
const shortMessageLimit = 50

// rule is one entry in the ordered keyword table.
type rule struct {
	category core.Category
	cues     []string
}

// rules are evaluated top to bottom; the first match wins.
var rules = []rule{
	{core.CategoryResearch, []string{
		"research", "look up", "look into", "find out", "search for",
		"latest news", "what's new", "current state of",
	}},
	{core.CategoryTicket, []string{
		"open a ticket", "create a ticket", "ticket", "urgent", "refund",
		"can't log in", "cannot log in", "account is locked", "complaint",
		"billing problem",
	}},
	{core.CategoryCode, []string{
		"```", "analyze this code", "review my code", "code review",
		"stack trace", "segfault", "memory leak", "profiling",
		"test coverage",
	}},
	{core.CategorySupport, []string{
		"help me", "not working", "doesn't work", "does not work", "broken",
		"error", "crash", "failing", "troubleshoot", "how do i fix",
	}},
	{core.CategoryKnowledge, []string{
		"what is", "what are", "explain", "how does", "documentation",
		"knowledge base", "faq", "guide", "definition of",
	}},
}

var greetingPattern = regexp.MustCompile(`^(hi|hiya|hello|hey|yo|sup|howdy|good (morning|afternoon|evening)|thanks|thank you|ok|okay)\b`)

// Options configure a Classifier.
type Options struct {
	Logger logging.Logger
}

// Classifier maps free-form messages onto request categories.
type Classifier struct {
	backend model.Backend
	prompts *prompt.Engine
	logger  logging.Logger
}

// New constructs a Classifier. The backend is only consulted for messages no
// heuristic rule covers.
func New(backend model.Backend, prompts *prompt.Engine, optFns ...func(o *Options)) *Classifier {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Classifier{backend: backend, prompts: prompts, logger: opts.Logger}
}

// Classify returns the category for the message. It never fails: backend
// errors and unparseable output both resolve to conversation.
func (c *Classifier) Classify(rc *core.RunContext) core.Category {
	text := strings.ToLower(strings.TrimSpace(rc.Message.Text))

	for _, r := range rules {
		for _, cue := range r.cues {
			if strings.Contains(text, cue) {
				return r.category
			}
		}
	}

	if len(text) < shortMessageLimit || greetingPattern.MatchString(text) {
		return core.CategoryConversation
	}

	return c.classifyWithBackend(rc)
}

func (c *Classifier) classifyWithBackend(rc *core.RunContext) core.Category {
	promptText, err := c.prompts.Render(prompt.TemplateClassifyIntent, map[string]any{"message": rc.Message.Text})
	if err != nil {
		c.logger.Error("rendering classification prompt", "error", err.Error())
		return core.CategoryConversation
	}

	start := time.Now()
	raw, err := c.backend.Complete(rc.Context, model.Request{Prompt: promptText, Temperature: 0.1, MaxTokens: 16})
	if err != nil {
		c.logger.Warn("classification backend call failed, defaulting to conversation",
			"request_id", rc.RequestID, "duration", time.Since(start).String(), "error", err.Error())
		return core.CategoryConversation
	}

	return parseCategory(raw)
}

// parseCategory extracts a known category keyword from backend output,
// case-insensitively. Unparseable output defaults to conversation.
func parseCategory(raw string) core.Category {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, `"'.!`)

	if cat, ok := core.ParseCategory(cleaned); ok {
		return cat
	}

	// Tolerate chatty answers like "Category: research".
	for _, cat := range []core.Category{
		core.CategoryTicket, core.CategoryKnowledge, core.CategorySupport,
		core.CategoryCode, core.CategoryResearch, core.CategoryConversation,
	} {
		if strings.Contains(cleaned, string(cat)) {
			return cat
		}
	}

	return core.CategoryConversation
}
