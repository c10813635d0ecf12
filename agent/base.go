// Package agent contains the capability agents of the framework. Each agent
// implements core.Agent: a cheap CanHandle predicate used by the fallback
// chain, and a Process method owning the domain logic for one request
// category (conversation, knowledge, research, support, tickets, code
// analysis).
package agent

import (
	"strings"
	"time"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
)

// apology is the generic user-safe failure message agents fall back to.
const apology = "Sorry, something went wrong while handling your request. Please try again in a moment."

// BaseAgent bundles the identity, backend access and prompt rendering shared
// by every concrete agent. Embed it and supply CanHandle/Process to satisfy
// core.Agent. CanHandle defaults to false so embedding agents must opt in.
type BaseAgent struct {
	name        string
	description string
	backend     model.Backend
	prompts     *prompt.Engine
	logger      logging.Logger
}

// NewBaseAgent constructs a BaseAgent. A nil logger is replaced by a no-op.
func NewBaseAgent(name, description string, backend model.Backend, prompts *prompt.Engine, logger logging.Logger) BaseAgent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return BaseAgent{name: name, description: description, backend: backend, prompts: prompts, logger: logger}
}

// Name returns the stable identifier used for routing and logging.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a short summary of the agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// CanHandle is the default predicate: decline everything.
func (b *BaseAgent) CanHandle(core.Message) bool { return false }

// complete renders the named template with vars and issues a single backend
// call. It is the one place agents talk to the language backend so latency
// logging stays uniform.
func (b *BaseAgent) complete(rc *core.RunContext, templateName string, vars map[string]any, temperature float64, maxTokens int64) (string, error) {
	promptText, err := b.prompts.Render(templateName, vars)
	if err != nil {
		return "", err
	}

	start := time.Now()
	out, err := b.backend.Complete(rc.Context, model.Request{Prompt: promptText, Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		b.logger.Warn("backend call failed",
			"agent", b.name, "template", templateName,
			"request_id", rc.RequestID, "duration", time.Since(start).String(), "error", err.Error())
		return "", err
	}

	return out, nil
}

// containsAny reports whether the lowercased text contains any of the cues.
func containsAny(text string, cues ...string) bool {
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
