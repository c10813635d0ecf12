// Package orchestrator ties the classifier, rate limiting, caching and the
// capability agents together: one entry point per inbound message, with
// prefix routing, fallback dispatch, a single-shot research augmentation
// pass and a panic boundary that turns any agent failure into a user-safe
// response.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/deskmesh/agent"
	"github.com/hupe1980/deskmesh/cache"
	"github.com/hupe1980/deskmesh/classify"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
)

// apology is the generic user-safe failure message.
const apology = "Sorry, something went wrong while handling your request. Please try again in a moment."

// DefaultTimeout bounds the end-to-end handling of one message.
const DefaultTimeout = 60 * time.Second

var personaPhrases = []string{"who are you", "what are you", "tell me about yourself", "are you a bot"}

var savePrefixes = []string{"remember this", "save this", "save to knowledge", "add to knowledge"}

// Agents is the full set of capability agents the orchestrator dispatches to.
type Agents struct {
	Conversation core.Agent
	Knowledge    core.Agent
	Research     core.Agent
	Support      core.Agent
	Ticket       core.Agent
	Code         core.Agent
}

// Options configure an Orchestrator.
type Options struct {
	// Timeout bounds one request end to end. Defaults to DefaultTimeout.
	Timeout time.Duration
	// ResponseCache holds final responses for the cacheable categories
	// (knowledge and research). Nil disables response caching.
	ResponseCache *cache.Manager
	Metrics       core.MetricsSink
	Logger        logging.Logger
}

// Orchestrator resolves one inbound message to a final response.
//
// Request flow: prefix routing first (absolute precedence), then
// classification, then dispatch. If the dispatched agent signals that it
// needs research, the research agent runs once and the originating agent is
// re-invoked with the findings; a second signal is accepted as final.
type Orchestrator struct {
	classifier *classify.Classifier
	agents     Agents
	fallback   []core.Agent

	timeout       time.Duration
	responseCache *cache.Manager
	metrics       core.MetricsSink
	logger        logging.Logger
}

// New constructs an Orchestrator. All agents must be non-nil.
func New(classifier *classify.Classifier, agents Agents, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		Timeout: DefaultTimeout,
		Metrics: core.NoOpMetrics{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	for name, a := range map[string]core.Agent{
		"conversation": agents.Conversation, "knowledge": agents.Knowledge,
		"research": agents.Research, "support": agents.Support,
		"ticket": agents.Ticket, "code": agents.Code,
	} {
		if a == nil {
			return nil, fmt.Errorf("orchestrator requires a %s agent", name)
		}
	}

	return &Orchestrator{
		classifier: classifier,
		agents:     agents,
		// Priority order for CanHandle probing; conversation always accepts
		// and terminates the chain.
		fallback: []core.Agent{
			agents.Ticket, agents.Support, agents.Code,
			agents.Knowledge, agents.Research, agents.Conversation,
		},
		timeout:       opts.Timeout,
		responseCache: opts.ResponseCache,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}, nil
}

// HandleMessage resolves one inbound message. It never returns an error:
// every failure mode is converted into a user-safe error response.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg core.Message) core.Response {
	o.metrics.RecordRequest()

	requestID := core.NewID()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	rc := core.NewRunContext(ctx, requestID, msg, o.logger)

	resp := o.resolve(rc)
	if resp.Error {
		o.metrics.RecordError(resp.ErrorKind)
	}
	return resp
}

func (o *Orchestrator) resolve(rc *core.RunContext) core.Response {
	// Prefix routing takes absolute precedence over classification.
	if target, routed := o.routeByPrefix(rc); routed {
		return o.dispatch(target.agent, target.rc, target.category)
	}

	category := o.classifyGuarded(rc)

	if a := o.agentFor(category); a != nil {
		return o.dispatch(a, rc, category)
	}
	return o.dispatchFallback(rc)
}

type route struct {
	agent    core.Agent
	rc       *core.RunContext
	category core.Category
}

// routeByPrefix matches literal prefix/substring rules that bypass
// classification: direct research requests, explicit save-to-knowledge
// phrasing and persona questions.
func (o *Orchestrator) routeByPrefix(rc *core.RunContext) (route, bool) {
	trimmed := strings.TrimSpace(rc.Message.Text)
	lower := strings.ToLower(trimmed)

	for _, prefix := range []string{"research:", "search:"} {
		if strings.HasPrefix(lower, prefix) {
			query := strings.TrimSpace(trimmed[len(prefix):])
			return route{
				agent:    o.agents.Research,
				category: core.CategoryResearch,
				rc: rc.WithVars(map[string]any{
					agent.VarResearchQuery:  query,
					agent.VarResearchDirect: "1",
				}),
			}, true
		}
	}

	for _, prefix := range savePrefixes {
		if strings.HasPrefix(lower, prefix) {
			// Category left unset: saves mutate state and must never be
			// served from the response cache.
			return route{
				agent: o.agents.Knowledge,
				rc:    rc.WithVars(map[string]any{agent.VarKnowledgeOp: "save"}),
			}, true
		}
	}

	// Entry maintenance commands are short and would otherwise short-circuit
	// to conversation. They mutate state, so no cache category either.
	for _, phrase := range []string{"rate entry ", "verify entry "} {
		if strings.Contains(lower, phrase) {
			return route{agent: o.agents.Knowledge, rc: rc}, true
		}
	}

	for _, phrase := range personaPhrases {
		if strings.Contains(lower, phrase) {
			return route{
				agent:    o.agents.Conversation,
				category: core.CategoryConversation,
				rc:       rc.WithVars(map[string]any{agent.VarPersona: true}),
			}, true
		}
	}

	return route{}, false
}

// classifyGuarded runs the classifier behind the panic boundary; a panicking
// classifier degrades to the fallback chain instead of killing the request.
func (o *Orchestrator) classifyGuarded(rc *core.RunContext) (category core.Category) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("classifier panicked",
				"request_id", rc.RequestID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			category = ""
		}
	}()
	return o.classifier.Classify(rc)
}

func (o *Orchestrator) agentFor(category core.Category) core.Agent {
	switch category {
	case core.CategoryConversation:
		return o.agents.Conversation
	case core.CategoryKnowledge:
		return o.agents.Knowledge
	case core.CategoryResearch:
		return o.agents.Research
	case core.CategorySupport:
		return o.agents.Support
	case core.CategoryTicket:
		return o.agents.Ticket
	case core.CategoryCode:
		return o.agents.Code
	default:
		return nil
	}
}

// dispatchFallback probes the agents in priority order. Conversation accepts
// unconditionally, so the chain always terminates.
func (o *Orchestrator) dispatchFallback(rc *core.RunContext) core.Response {
	for _, a := range o.fallback {
		if a.CanHandle(rc.Message) {
			o.logger.Debug("fallback chain selected agent", "request_id", rc.RequestID, "agent", a.Name())
			return o.dispatch(a, rc, "")
		}
	}
	// Unreachable as long as conversation is registered.
	return core.ErrorResponse(core.ErrorKindInternal, apology)
}

// dispatch runs one agent, serves the response cache for cacheable
// categories and resolves the single-shot research augmentation.
func (o *Orchestrator) dispatch(a core.Agent, rc *core.RunContext, category core.Category) core.Response {
	cacheKey, cacheable := o.cacheKey(category, rc)
	if cacheable {
		if cached, ok := o.responseCache.Get(cacheKey); ok {
			if resp, ok := cached.(core.Response); ok {
				o.metrics.RecordCacheHit()
				return resp
			}
		}
		o.metrics.RecordCacheMiss()
	}

	resp := o.processGuarded(a, rc)

	if resp.NeedsResearch {
		resp = o.augment(a, rc, resp)
	}

	if cacheable && !resp.Error && !resp.NeedsResearch {
		o.responseCache.Set(cacheKey, resp)
	}
	return resp
}

// cacheKey reports whether the category is response-cacheable and its key.
// Only knowledge and research answers are stable enough to reuse across
// users; everything else is personal or stateful.
func (o *Orchestrator) cacheKey(category core.Category, rc *core.RunContext) (string, bool) {
	if o.responseCache == nil {
		return "", false
	}
	if category != core.CategoryKnowledge && category != core.CategoryResearch {
		return "", false
	}
	return cache.Key("response", string(category)+":"+rc.Message.Text), true
}

// augment performs the single-shot research pass: run the research agent
// with the signalled query (falling back to the original message), then
// re-invoke the originating agent with the findings merged into its vars.
// A second needs-research signal from the augmented call is accepted as
// final.
func (o *Orchestrator) augment(originating core.Agent, rc *core.RunContext, signal core.Response) core.Response {
	query := strings.TrimSpace(signal.SearchQuery)
	if query == "" {
		query = rc.Message.Text
	}
	o.logger.Info("research augmentation", "request_id", rc.RequestID, "agent", originating.Name(), "query", query)

	researchRC := rc.WithVars(map[string]any{agent.VarResearchQuery: query})
	research := o.processGuarded(o.agents.Research, researchRC)
	if research.Error {
		// Research failed; the signalling response still carries usable
		// content, so return it rather than the failure.
		return signal
	}

	vars := map[string]any{"research_results": research.Content}
	if sources, ok := research.Metadata["sources"]; ok {
		vars["source_results"] = sources
	}

	augmented := o.processGuarded(originating, rc.WithVars(vars))
	augmented.NeedsResearch = false
	return augmented
}

// processGuarded runs one agent Process call behind the panic boundary and
// converts returned errors into user-safe responses.
func (o *Orchestrator) processGuarded(a core.Agent, rc *core.RunContext) (resp core.Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent panicked",
				"request_id", rc.RequestID, "agent", a.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp = core.ErrorResponse(core.ErrorKindInternal, apology)
		}
	}()

	resp, err := a.Process(rc)
	if err != nil {
		return o.errorResponse(rc, a, err)
	}
	if rc.Err() != nil {
		o.logger.Warn("request deadline exceeded", "request_id", rc.RequestID, "agent", a.Name())
		return core.ErrorResponse(core.ErrorKindInternal, "This took too long to process. Please try again.")
	}
	return resp
}

// errorResponse maps the error taxonomy onto user-safe responses. Validation
// and rate-limit messages are shown verbatim; everything else is hidden
// behind the generic apology.
func (o *Orchestrator) errorResponse(rc *core.RunContext, a core.Agent, err error) core.Response {
	o.logger.Error("agent failed", "request_id", rc.RequestID, "agent", a.Name(), "error", err.Error())

	var validation *core.ValidationError
	if errors.As(err, &validation) {
		return core.ErrorResponse(core.ErrorKindValidation, validation.Message)
	}

	var rateLimit *core.RateLimitError
	if errors.As(err, &rateLimit) {
		resp := core.ErrorResponse(core.ErrorKindRateLimit,
			fmt.Sprintf("You're doing that too often. Please try again in %s.", rateLimit.RetryAfter.Round(time.Second)))
		return resp.WithMeta("retry_after", rateLimit.RetryAfter.Round(time.Second).String())
	}

	var backend *core.BackendError
	if errors.As(err, &backend) {
		return core.ErrorResponse(core.ErrorKindBackend, apology)
	}

	return core.ErrorResponse(core.ErrorKindInternal, apology)
}
