package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
)

// MaxSeverity is the upper bound of the support severity scale.
const MaxSeverity = 5

// Weighted term tables for severity scoring.
var (
	criticalTerms = []string{"outage", "down", "data loss", "security breach", "cannot access", "urgent", "production"}
	errorTerms    = []string{"error", "broken", "crash", "fail", "bug", "not working", "stuck"}
	seekingTerms  = []string{"how do i", "how to", "what is", "explain", "documentation", "guide", "wondering"}
)

var ticketPhrases = []string{"open a ticket", "create a ticket", "file a ticket", "raise a ticket", "need a ticket"}

// SupportOptions configure a SupportAgent.
type SupportOptions struct {
	Logger logging.Logger
}

// SupportAgent triages user issues by severity. High-severity issues (and
// explicit ticket phrasing) delegate to the ticket agent; mid-severity issues
// ask the backend whether a ticket is warranted; everything else is answered
// from the knowledge store, falling back to the research signal and finally
// to a plain backend answer.
type SupportAgent struct {
	BaseAgent
	knowledge core.KnowledgeStore
	tickets   core.Agent
}

// NewSupportAgent constructs a SupportAgent. tickets receives delegated
// high-severity requests and is typically the TicketAgent.
func NewSupportAgent(backend model.Backend, prompts *prompt.Engine, knowledge core.KnowledgeStore, tickets core.Agent, optFns ...func(o *SupportOptions)) *SupportAgent {
	opts := SupportOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &SupportAgent{
		BaseAgent: NewBaseAgent("support", "Issue triage, severity scoring and ticket escalation", backend, prompts, opts.Logger),
		knowledge: knowledge,
		tickets:   tickets,
	}
}

// CanHandle accepts trouble-report phrasing.
func (a *SupportAgent) CanHandle(msg core.Message) bool {
	return containsAny(msg.Text,
		"not working", "broken", "error", "issue", "problem", "help me",
		"crash", "down", "outage", "can't", "cannot",
	) || containsAny(msg.Text, ticketPhrases...)
}

// Process implements core.Agent.
func (a *SupportAgent) Process(rc *core.RunContext) (core.Response, error) {
	severity := SeverityScore(rc.Message.Text)

	if severity >= 4 || containsAny(rc.Message.Text, ticketPhrases...) {
		return a.escalate(rc, severity)
	}

	if severity >= 2 && a.confirmTicket(rc, severity) {
		return a.escalate(rc, severity)
	}

	return a.answer(rc, severity)
}

// escalate hands the request to the ticket agent.
func (a *SupportAgent) escalate(rc *core.RunContext, severity int) (core.Response, error) {
	a.logger.Info("escalating to ticket agent", "request_id", rc.RequestID, "severity", severity)

	resp, err := a.tickets.Process(rc)
	if err != nil {
		return core.Response{}, fmt.Errorf("delegating to ticket agent: %w", err)
	}
	return resp.WithMeta("severity", severity), nil
}

// confirmTicket asks the backend for a yes/no on mid-severity issues. Call
// failures and unparseable answers mean no escalation.
func (a *SupportAgent) confirmTicket(rc *core.RunContext, severity int) bool {
	raw, err := a.complete(rc, prompt.TemplateSupportConfirm, map[string]any{
		"message":  rc.Message.Text,
		"severity": severity,
	}, 0.1, 8)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "yes")
}

// answer resolves low-severity issues: research findings when augmented,
// then the knowledge store, then the research signal, then a plain backend
// answer when the store has nothing and research was already exhausted.
func (a *SupportAgent) answer(rc *core.RunContext, severity int) (core.Response, error) {
	vars := map[string]any{"message": rc.Message.Text}

	if research := rc.StringVar("research_results"); research != "" {
		vars["research_results"] = research
		return a.renderAnswer(rc, vars, severity)
	}

	entries, err := a.knowledge.Search(core.KnowledgeQuery{
		Text:         deriveSearchQuery(rc.Message.Text),
		VerifiedOnly: true,
		Limit:        3,
	})
	if err != nil {
		a.logger.Warn("knowledge lookup failed, answering directly",
			"request_id", rc.RequestID, "error", err.Error())
		return a.renderAnswer(rc, vars, severity)
	}

	if len(entries) == 0 {
		return core.Response{
			Content:       "I don't have a documented fix for this, let me research it.",
			NeedsResearch: true,
			SearchQuery:   deriveSearchQuery(rc.Message.Text),
		}, nil
	}

	vars["research_results"] = formatEntries(entries)
	return a.renderAnswer(rc, vars, severity)
}

func (a *SupportAgent) renderAnswer(rc *core.RunContext, vars map[string]any, severity int) (core.Response, error) {
	reply, err := a.complete(rc, prompt.TemplateSupportAnswer, vars, 0.5, 1024)
	if err != nil {
		return core.ErrorResponse(core.ErrorKindBackend, apology), nil
	}
	resp := core.Response{Content: reply}
	return resp.WithMeta("severity", severity), nil
}

// SeverityScore scores an issue report from weighted term matches: critical
// terms +2, error terms +1, knowledge-seeking terms -1, clamped to [0,5].
func SeverityScore(text string) int {
	lower := strings.ToLower(text)

	score := 0
	for _, term := range criticalTerms {
		if strings.Contains(lower, term) {
			score += 2
		}
	}
	for _, term := range errorTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	for _, term := range seekingTerms {
		if strings.Contains(lower, term) {
			score--
		}
	}

	if score < 0 {
		return 0
	}
	if score > MaxSeverity {
		return MaxSeverity
	}
	return score
}
