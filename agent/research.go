package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/deskmesh/cache"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/hupe1980/deskmesh/search"
)

// Vars understood by the ResearchAgent.
const (
	// VarResearchQuery carries an explicit query, set by the orchestrator's
	// prefix routing or by an agent's research fallback signal.
	VarResearchQuery = "research_query"
	// VarResearchDirect marks a user-initiated research request, which gets
	// the enhanced source-annotated presentation instead of the raw synthesis.
	VarResearchDirect = "research_direct"
)

// optimizeThreshold is the query length below which the backend rewrite call
// is skipped; short queries are already keyword-shaped.
const optimizeThreshold = 60

// ResearchOptions configure a ResearchAgent.
type ResearchOptions struct {
	// ResultLimit bounds external search hits per request. Defaults to 5.
	ResultLimit int
	Logger      logging.Logger
}

// ResearchAgent answers questions from external search. Long queries are
// rewritten into keyword form via one backend call (failures fall back to the
// raw query), findings are cached, and every search failure kind degrades
// into a user-safe response instead of surfacing transport errors.
type ResearchAgent struct {
	BaseAgent
	client      search.Client
	resultCache *cache.Manager
	resultLimit int
}

// NewResearchAgent constructs a ResearchAgent.
func NewResearchAgent(backend model.Backend, prompts *prompt.Engine, client search.Client, resultCache *cache.Manager, optFns ...func(o *ResearchOptions)) *ResearchAgent {
	opts := ResearchOptions{ResultLimit: 5}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ResearchAgent{
		BaseAgent:   NewBaseAgent("research", "External research and source gathering", backend, prompts, opts.Logger),
		client:      client,
		resultCache: resultCache,
		resultLimit: opts.ResultLimit,
	}
}

// CanHandle accepts research-seeking phrasing.
func (a *ResearchAgent) CanHandle(msg core.Message) bool {
	return containsAny(msg.Text, "research", "look up", "find out", "search for", "latest", "compare", "investigate")
}

// Process implements core.Agent.
func (a *ResearchAgent) Process(rc *core.RunContext) (core.Response, error) {
	query := a.buildQuery(rc)
	if query == "" {
		return core.ErrorResponse(core.ErrorKindValidation, "Tell me what you'd like me to research."), nil
	}
	direct := rc.StringVar(VarResearchDirect) != ""

	// Direct and synthesis renderings differ, so they must not share a
	// cache slot.
	key := cache.Key("research", renderMode(direct)+":"+query)
	if cached, ok := a.resultCache.Get(key); ok {
		if resp, ok := cached.(core.Response); ok {
			return resp, nil
		}
	}

	results, err := a.client.Search(rc.Context, query, a.resultLimit)
	if err != nil {
		return a.searchFailure(rc, err), nil
	}
	if len(results) == 0 {
		resp := core.Response{Content: fmt.Sprintf("I searched for %q but found nothing useful. Try rephrasing with more specific terms.", query)}
		return resp.WithMeta("query", query), nil
	}

	resp := core.Response{Content: a.present(query, results, direct)}
	resp = resp.WithMeta("query", query)
	resp = resp.WithMeta("sources", sourceURLs(results))
	if avg, ok := averageConfidence(results); ok {
		resp = resp.WithMeta("confidence", avg)
	}
	a.resultCache.Set(key, resp)

	// Analytics must never block or fail the response path.
	go a.logger.Info("research completed",
		"request_id", rc.RequestID, "query", query, "results", len(results), "direct", direct)

	return resp, nil
}

// buildQuery resolves the search query: an explicit var wins; long free-form
// messages get one backend keyword rewrite; short ones and rewrite failures
// use the deterministic derivation.
func (a *ResearchAgent) buildQuery(rc *core.RunContext) string {
	if q := strings.TrimSpace(rc.StringVar(VarResearchQuery)); q != "" {
		return q
	}

	raw := deriveSearchQuery(rc.Message.Text)
	if len(raw) < optimizeThreshold {
		return raw
	}

	optimized, err := a.complete(rc, prompt.TemplateResearchOptimize, map[string]any{"query": rc.Message.Text}, 0.1, 64)
	if err == nil {
		optimized = strings.Trim(strings.TrimSpace(optimized), `"`)
		// Reject chatty output; an optimized query is a short keyword string.
		if optimized != "" && len(optimized) <= 120 && !strings.Contains(optimized, "\n") {
			return optimized
		}
		a.logger.Debug("query optimization unusable, using raw query", "request_id", rc.RequestID)
	}

	return raw
}

// searchFailure maps a classified search error onto a user-safe response.
func (a *ResearchAgent) searchFailure(rc *core.RunContext, err error) core.Response {
	a.logger.Warn("search failed", "request_id", rc.RequestID, "error", err.Error())

	var serr *search.Error
	if !errors.As(err, &serr) {
		return core.ErrorResponse(core.ErrorKindSearch, "Research is unavailable right now. Please try again later.")
	}

	switch serr.Kind {
	case search.KindRateLimited:
		return core.ErrorResponse(core.ErrorKindRateLimit, "The search service is throttling us. Please try again in a minute.")
	case search.KindInvalidCredentials:
		return core.ErrorResponse(core.ErrorKindSearch, "Research is misconfigured on our side. The team has been notified.")
	case search.KindInvalidQuery:
		return core.ErrorResponse(core.ErrorKindValidation, "That query was empty after cleanup. Tell me what to research.")
	case search.KindTimeout:
		return core.ErrorResponse(core.ErrorKindSearch, "The search took too long. Please try again.")
	default:
		return core.ErrorResponse(core.ErrorKindSearch, "Research is unavailable right now. Please try again later.")
	}
}

// present renders the findings. Both modes cite sources inline as [n]; the
// direct mode adds per-source annotations and the overall confidence.
func (a *ResearchAgent) present(query string, results []search.Result, direct bool) string {
	var sb strings.Builder

	if direct {
		fmt.Fprintf(&sb, "## Research: %s\n\n", query)
	} else {
		fmt.Fprintf(&sb, "Here's what I found on %q:\n\n", query)
	}

	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] **%s**\n%s\n", i+1, r.Title, snippet(r.Content, 280))
		if direct && r.HasScore {
			fmt.Fprintf(&sb, "Relevance: %.2f\n", r.Score)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Sources:\n")
	for i, r := range results {
		if r.URL != "" {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.URL)
		}
	}
	if direct {
		if avg, ok := averageConfidence(results); ok {
			fmt.Fprintf(&sb, "\nOverall confidence: %.2f\n", avg)
		}
	}

	return strings.TrimSpace(sb.String())
}

func renderMode(direct bool) string {
	if direct {
		return "direct"
	}
	return "synthesis"
}

// averageConfidence averages scores over the results that carry one.
func averageConfidence(results []search.Result) (float64, bool) {
	var sum float64
	var n int
	for _, r := range results {
		if r.HasScore {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sourceURLs(results []search.Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}
