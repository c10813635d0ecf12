package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/hupe1980/deskmesh/ratelimit"
	"github.com/tidwall/gjson"
)

// VarPersona marks a request routed down the persona/identity path.
const VarPersona = "persona"

// ConversationOptions configure a ConversationAgent.
type ConversationOptions struct {
	// HistoryLimit bounds the recent-message window per user. Defaults to 10.
	HistoryLimit int
	// MaxChunkLen bounds a single response chunk. Defaults to 1900.
	MaxChunkLen int
	// Burst and Sustained override the conversation rate limits
	// (defaults: 3/5s and 10/min).
	Burst     ratelimit.Config
	Sustained ratelimit.Config
	Logger    logging.Logger
}

// ConversationAgent is the terminal fallback agent. It keeps bounded recent
// history per user, derives a lightweight style classification with a
// deterministic fallback, enforces its own burst and sustained rate limits
// (distinct from the shared action limiter) and splits oversized replies
// into ordered chunks.
type ConversationAgent struct {
	BaseAgent
	history      core.HistoryStore
	burst        *ratelimit.Limiter
	sustained    *ratelimit.Limiter
	historyLimit int
	maxChunkLen  int
}

// NewConversationAgent constructs a ConversationAgent.
func NewConversationAgent(backend model.Backend, prompts *prompt.Engine, history core.HistoryStore, optFns ...func(o *ConversationOptions)) *ConversationAgent {
	opts := ConversationOptions{
		HistoryLimit: 10,
		MaxChunkLen:  DefaultMaxChunkLen,
		Burst:        ratelimit.Config{MaxRequests: 3, Window: 5 * time.Second},
		Sustained:    ratelimit.Config{MaxRequests: 10, Window: time.Minute},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ConversationAgent{
		BaseAgent:    NewBaseAgent("conversation", "General conversation and the guaranteed terminal fallback", backend, prompts, opts.Logger),
		history:      history,
		burst:        ratelimit.NewLimiter(opts.Burst),
		sustained:    ratelimit.NewLimiter(opts.Sustained),
		historyLimit: opts.HistoryLimit,
		maxChunkLen:  opts.MaxChunkLen,
	}
}

// CanHandle always reports true: conversation is the guaranteed terminal
// fallback of the dispatch chain.
func (a *ConversationAgent) CanHandle(core.Message) bool { return true }

// Process implements core.Agent.
func (a *ConversationAgent) Process(rc *core.RunContext) (core.Response, error) {
	if resp, limited := a.checkLimits(rc); limited {
		return resp, nil
	}

	if _, ok := rc.Var(VarPersona); ok {
		return a.persona(rc)
	}

	history, err := a.history.GetHistory(rc.UserID(), a.historyLimit)
	if err != nil {
		a.logger.Warn("loading history failed", "request_id", rc.RequestID, "error", err.Error())
		history = nil
	}

	style := a.analyzeStyle(rc)

	vars := map[string]any{
		"message": rc.Message.Text,
		"style":   style.Style,
		"history": historyVars(history),
	}
	if research := rc.StringVar("research_results"); research != "" {
		vars["research_results"] = research
	}

	reply, err := a.complete(rc, prompt.TemplateConversationReply, vars, 0.7, 1024)
	if err != nil {
		return core.ErrorResponse(core.ErrorKindBackend, apology), nil
	}

	a.recordHistory(rc, reply)

	return a.chunked(reply), nil
}

// persona answers identity questions without touching history or style.
func (a *ConversationAgent) persona(rc *core.RunContext) (core.Response, error) {
	reply, err := a.complete(rc, prompt.TemplatePersona, map[string]any{"message": rc.Message.Text}, 0.7, 512)
	if err != nil {
		return core.ErrorResponse(core.ErrorKindBackend, apology), nil
	}
	return a.chunked(reply), nil
}

func (a *ConversationAgent) checkLimits(rc *core.RunContext) (core.Response, bool) {
	if ok, retryAfter := a.burst.Check(rc.UserID()); !ok {
		return rateLimitedResponse("You're sending messages a bit fast.", retryAfter), true
	}
	if ok, retryAfter := a.sustained.Check(rc.UserID()); !ok {
		return rateLimitedResponse("You've reached the conversation limit for now.", retryAfter), true
	}
	return core.Response{}, false
}

func rateLimitedResponse(reason string, retryAfter time.Duration) core.Response {
	wait := retryAfter.Round(time.Second)
	if wait <= 0 {
		wait = time.Second
	}
	resp := core.ErrorResponse(core.ErrorKindRateLimit, fmt.Sprintf("%s Please try again in %s.", reason, wait))
	return resp.WithMeta("retry_after", wait.String())
}

// styleResult is the outcome of the style/intent analysis.
type styleResult struct {
	Style  string
	Intent string
}

// analyzeStyle asks the backend for a strict JSON style classification and
// falls back to a keyword heuristic whenever the call or the parse fails.
func (a *ConversationAgent) analyzeStyle(rc *core.RunContext) styleResult {
	raw, err := a.complete(rc, prompt.TemplateConversationStyle, map[string]any{"message": rc.Message.Text}, 0.1, 64)
	if err == nil {
		parsed := gjson.Parse(raw)
		style := parsed.Get("style").String()
		intent := parsed.Get("intent").String()
		if validStyle(style) && intent != "" {
			return styleResult{Style: style, Intent: intent}
		}
		a.logger.Debug("style analysis unparseable, using heuristic", "request_id", rc.RequestID)
	}
	return heuristicStyle(rc.Message.Text)
}

func validStyle(s string) bool {
	switch s {
	case "casual", "formal", "frustrated":
		return true
	}
	return false
}

// heuristicStyle is the deterministic non-AI fallback for style analysis.
func heuristicStyle(text string) styleResult {
	lower := strings.ToLower(text)

	style := "casual"
	switch {
	case strings.Count(text, "!") >= 2 || containsAny(lower, "wtf", "ridiculous", "fed up", "angry", "unacceptable"):
		style = "frustrated"
	case containsAny(lower, "please", "kindly", "regards", "would you"):
		style = "formal"
	}

	intent := "statement"
	switch {
	case strings.Contains(text, "?"):
		intent = "question"
	case containsAny(lower, "can you", "could you", "please"):
		intent = "request"
	}

	return styleResult{Style: style, Intent: intent}
}

// recordHistory persists both sides of the turn. Store failures are logged,
// never surfaced.
func (a *ConversationAgent) recordHistory(rc *core.RunContext, reply string) {
	if err := a.history.AddEntry(rc.UserID(), rc.Message.Text, false); err != nil {
		a.logger.Warn("storing user turn failed", "request_id", rc.RequestID, "error", err.Error())
	}
	if err := a.history.AddEntry(rc.UserID(), reply, true); err != nil {
		a.logger.Warn("storing assistant turn failed", "request_id", rc.RequestID, "error", err.Error())
	}
}

// chunked wraps the reply in a Response, attaching ordered chunks when the
// reply exceeds the configured limit. Content always carries the first chunk.
func (a *ConversationAgent) chunked(reply string) core.Response {
	chunks := SplitResponse(reply, a.maxChunkLen)
	resp := core.Response{Content: chunks[0]}
	if len(chunks) > 1 {
		resp = resp.WithMeta("chunks", chunks)
	}
	return resp
}

func historyVars(history []core.HistoryEntry) []map[string]any {
	out := make([]map[string]any, 0, len(history))
	for _, h := range history {
		out = append(out, map[string]any{"role": h.Role, "content": h.Content})
	}
	return out
}
