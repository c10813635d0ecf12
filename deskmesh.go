// Package deskmesh provides a high-level façade over the orchestration core
// (classifier, capability agents, caches, rate limiting & logging) enabling
// rapid construction of request-routing assistants. Most applications
// interact with this package by:
//  1. Creating a DeskMesh via New() with a language backend (optionally
//     overriding the default in-memory stores)
//  2. Handing inbound messages to HandleMessage
//
// The façade delegates request resolution to orchestrator.Orchestrator while
// keeping setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply durable
// store implementations, a real search client and a structured logger.
package deskmesh

import (
	"context"
	"time"

	"github.com/hupe1980/deskmesh/agent"
	"github.com/hupe1980/deskmesh/cache"
	"github.com/hupe1980/deskmesh/classify"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/history"
	"github.com/hupe1980/deskmesh/knowledge"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/orchestrator"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/hupe1980/deskmesh/ratelimit"
	"github.com/hupe1980/deskmesh/search"
	"github.com/hupe1980/deskmesh/ticket"
)

// Options configures the DeskMesh instance.
type Options struct {
	// PromptStore overrides the built-in prompt templates.
	PromptStore prompt.Store

	// SearchClient serves the research agent. Defaults to no client, which
	// degrades research into user-safe unavailability responses.
	SearchClient search.Client

	// Stores (default to in-memory implementations if not provided).
	HistoryStore    core.HistoryStore
	KnowledgeStore  core.KnowledgeStore
	TicketStore     core.TicketStore
	ChannelProvider core.ChannelProvider

	// RateLimits defaults to the standard per-action budgets.
	RateLimits *ratelimit.Registry

	// Timeout bounds one request end to end. Defaults to
	// orchestrator.DefaultTimeout.
	Timeout time.Duration

	// StaffRoleMention is prepended to ticket staff notifications.
	StaffRoleMention string

	// Metrics receives orchestration counters. Defaults to a no-op sink.
	Metrics core.MetricsSink

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// DeskMesh is the high-level façade aggregating the orchestrator and its
// collaborators.
type DeskMesh struct {
	opts Options
	orch *orchestrator.Orchestrator
}

// New creates a new DeskMesh instance around the given language backend with
// optional overrides. Any unset store is initialized with an in-memory
// implementation.
func New(backend model.Backend, optFns ...func(o *Options)) (*DeskMesh, error) {
	opts := Options{
		HistoryStore:   history.NewInMemoryStore(50),
		KnowledgeStore: knowledge.NewInMemoryStore(),
		RateLimits:     ratelimit.DefaultRegistry(),
		Timeout:        orchestrator.DefaultTimeout,
		Metrics:        core.NoOpMetrics{},
		Logger:         logging.NoOpLogger{},
	}
	ticketStore := ticket.NewInMemoryStore()
	opts.TicketStore = ticketStore
	opts.ChannelProvider = ticket.NewInMemoryChannels()

	for _, fn := range optFns {
		fn(&opts)
	}

	engine, err := prompt.NewEngine(opts.PromptStore)
	if err != nil {
		return nil, err
	}

	searchClient := opts.SearchClient
	if searchClient == nil {
		searchClient = unavailableSearch{}
	}

	// Per-concern caches: knowledge answers are refreshed more often than
	// research findings.
	knowledgeCache := cache.New(func(o *cache.Options) {
		o.DefaultTTL = 10 * time.Minute
		o.Metrics = opts.Metrics
	})
	researchCache := cache.New(func(o *cache.Options) {
		o.DefaultTTL = time.Hour
		o.Metrics = opts.Metrics
	})
	responseCache := cache.New(func(o *cache.Options) {
		o.DefaultTTL = 5 * time.Minute
		o.Metrics = opts.Metrics
	})

	ticketAgent := agent.NewTicketAgent(backend, engine, opts.TicketStore, opts.ChannelProvider,
		func(o *agent.TicketOptions) {
			o.StaffRoleMention = opts.StaffRoleMention
			o.Logger = opts.Logger
		})

	agents := orchestrator.Agents{
		Conversation: agent.NewConversationAgent(backend, engine, opts.HistoryStore,
			func(o *agent.ConversationOptions) { o.Logger = opts.Logger }),
		Knowledge: agent.NewKnowledgeAgent(backend, engine, opts.KnowledgeStore, opts.RateLimits, knowledgeCache,
			func(o *agent.KnowledgeOptions) { o.Logger = opts.Logger }),
		Research: agent.NewResearchAgent(backend, engine, searchClient, researchCache,
			func(o *agent.ResearchOptions) { o.Logger = opts.Logger }),
		Support: agent.NewSupportAgent(backend, engine, opts.KnowledgeStore, ticketAgent,
			func(o *agent.SupportOptions) { o.Logger = opts.Logger }),
		Ticket: ticketAgent,
		Code: agent.NewCodeAnalysisAgent(backend, engine,
			func(o *agent.CodeAnalysisOptions) { o.Logger = opts.Logger }),
	}

	classifier := classify.New(backend, engine, func(o *classify.Options) { o.Logger = opts.Logger })

	orch, err := orchestrator.New(classifier, agents, func(o *orchestrator.Options) {
		o.Timeout = opts.Timeout
		o.ResponseCache = responseCache
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &DeskMesh{opts: opts, orch: orch}, nil
}

// HandleMessage resolves one inbound message to a final response. It never
// returns an error: every failure mode is converted into a user-safe error
// response.
func (m *DeskMesh) HandleMessage(ctx context.Context, msg core.Message) core.Response {
	return m.orch.HandleMessage(ctx, msg)
}

// unavailableSearch is the default search client when none is configured.
type unavailableSearch struct{}

func (unavailableSearch) Search(context.Context, string, int) ([]search.Result, error) {
	return nil, &search.Error{Kind: search.KindServiceError}
}
