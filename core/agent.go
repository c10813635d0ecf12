package core

// Agent is the common contract implemented by every capability agent.
//
// Agents are the processing units of the framework. The orchestrator routes
// a classified message to the matching agent, or probes agents in priority
// order via CanHandle when classification is unavailable.
//
// Implementations must:
//   - Keep CanHandle cheap and side-effect free (default answer: false)
//   - Respect context cancellation carried by the RunContext
//   - Convert domain failures into Response{Error: true} rather than
//     returning raw errors for expected conditions
type Agent interface {
	// Name returns the stable identifier used for routing and logging.
	Name() string

	// Description returns a short human-readable summary of the agent's purpose.
	Description() string

	// CanHandle reports whether the agent is willing to process the message.
	// It is a cheap predicate used by the fallback chain.
	CanHandle(msg Message) bool

	// Process handles the message and produces a Response. Errors returned
	// here are converted into user-safe failure responses at the
	// orchestrator boundary.
	Process(rc *RunContext) (Response, error)
}
