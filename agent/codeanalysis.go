package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/tidwall/gjson"
)

// analysisKind describes one supported code analysis: its prompt template,
// the input it needs, the guidance shown when that input is missing, and the
// formatter for its structured result.
type analysisKind struct {
	name     string
	template string
	inputVar string // "code" or "profile"
	guidance string
	format   func(parsed gjson.Result) string
}

var analysisKinds = []analysisKind{
	{
		name:     "static",
		template: prompt.TemplateCodeStatic,
		inputVar: "code",
		guidance: "Paste the code you want analyzed inside a fenced code block (```).",
		format: formatFindings("issues", "Static analysis", func(item gjson.Result) string {
			return fmt.Sprintf("line %d [%s] %s", item.Get("line").Int(), item.Get("severity").String(), item.Get("message").String())
		}),
	},
	{
		name:     "performance",
		template: prompt.TemplateCodePerformance,
		inputVar: "code",
		guidance: "Paste the code in a fenced code block so I can look for hotspots.",
		format: formatFindings("hotspots", "Performance analysis", func(item gjson.Result) string {
			return fmt.Sprintf("%s (%s impact): %s", item.Get("location").String(), item.Get("impact").String(), item.Get("suggestion").String())
		}),
	},
	{
		name:     "memory",
		template: prompt.TemplateCodeMemory,
		inputVar: "profile",
		guidance: "Share your profiling output (heap dump or allocation profile) in a fenced code block.",
		format: formatFindings("leaks", "Memory analysis", func(item gjson.Result) string {
			return fmt.Sprintf("%s: %s", item.Get("site").String(), item.Get("evidence").String())
		}),
	},
	{
		name:     "complexity",
		template: prompt.TemplateCodeComplexity,
		inputVar: "code",
		guidance: "Paste the functions you want assessed in a fenced code block.",
		format: formatFindings("functions", "Complexity assessment", func(item gjson.Result) string {
			return fmt.Sprintf("%s: complexity %d", item.Get("name").String(), item.Get("complexity").Int())
		}),
	},
	{
		name:     "security",
		template: prompt.TemplateCodeSecurity,
		inputVar: "code",
		guidance: "Paste the code you want reviewed in a fenced code block.",
		format: formatFindings("findings", "Security review", func(item gjson.Result) string {
			return fmt.Sprintf("[%s] %s: %s", item.Get("severity").String(), item.Get("kind").String(), item.Get("detail").String())
		}),
	},
	{
		name:     "dependencies",
		template: prompt.TemplateCodeDependencies,
		inputVar: "code",
		guidance: "Share your dependency manifest (go.mod, package.json, ...) in a fenced code block.",
		format: formatFindings("outdated", "Dependency review", func(item gjson.Result) string {
			return fmt.Sprintf("%s: %s", item.Get("name").String(), item.Get("advice").String())
		}),
	},
	{
		name:     "coverage",
		template: prompt.TemplateCodeCoverage,
		inputVar: "code",
		guidance: "Share your coverage report in a fenced code block.",
		format: formatFindings("gaps", "Coverage review", func(item gjson.Result) string {
			return fmt.Sprintf("%s: %s risk", item.Get("area").String(), item.Get("risk").String())
		}),
	},
}

// CodeAnalysisOptions configure a CodeAnalysisAgent.
type CodeAnalysisOptions struct {
	Logger logging.Logger
}

// CodeAnalysisAgent runs one of seven analysis kinds over code or profiling
// data supplied in a fenced block. The kind is picked by the backend with a
// deterministic keyword fallback; missing input yields kind-specific
// guidance instead of an error.
type CodeAnalysisAgent struct {
	BaseAgent
}

// NewCodeAnalysisAgent constructs a CodeAnalysisAgent.
func NewCodeAnalysisAgent(backend model.Backend, prompts *prompt.Engine, optFns ...func(o *CodeAnalysisOptions)) *CodeAnalysisAgent {
	opts := CodeAnalysisOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &CodeAnalysisAgent{
		BaseAgent: NewBaseAgent("code_analysis", "Static, performance, memory, complexity, security, dependency and coverage analysis", backend, prompts, opts.Logger),
	}
}

// CanHandle accepts code-analysis phrasing or an embedded fenced block.
func (a *CodeAnalysisAgent) CanHandle(msg core.Message) bool {
	return strings.Contains(msg.Text, "```") ||
		containsAny(msg.Text, "analyze", "review my code", "stack trace", "profil", "complexity", "vulnerab", "coverage")
}

// Process implements core.Agent.
func (a *CodeAnalysisAgent) Process(rc *core.RunContext) (core.Response, error) {
	kind := a.selectKind(rc)

	input := extractFencedContent(rc.Message.Text)
	if input == "" {
		resp := core.Response{Content: kind.guidance}
		return resp.WithMeta("analysis_kind", kind.name), nil
	}

	raw, err := a.complete(rc, kind.template, map[string]any{kind.inputVar: input}, 0.2, 1024)
	if err != nil {
		return core.ErrorResponse(core.ErrorKindBackend, apology), nil
	}

	resp := core.Response{Content: kind.format(gjson.Parse(raw))}
	if resp.Content == "" {
		// Unstructured output is still useful; pass it through.
		a.logger.Debug("analysis output unparseable, passing through", "request_id", rc.RequestID, "kind", kind.name)
		resp.Content = strings.TrimSpace(raw)
	}
	return resp.WithMeta("analysis_kind", kind.name), nil
}

// selectKind asks the backend to pick the analysis kind, scanning the answer
// for a known kind name. Failures and unknown answers use a keyword
// heuristic, defaulting to static.
func (a *CodeAnalysisAgent) selectKind(rc *core.RunContext) analysisKind {
	raw, err := a.complete(rc, prompt.TemplateCodeKindSelect, map[string]any{"message": rc.Message.Text}, 0.1, 8)
	if err == nil {
		lower := strings.ToLower(raw)
		for _, kind := range analysisKinds {
			if strings.Contains(lower, kind.name) {
				return kind
			}
		}
		a.logger.Debug("kind selection unparseable, using heuristic", "request_id", rc.RequestID)
	}
	return heuristicKind(rc.Message.Text)
}

func heuristicKind(text string) analysisKind {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "slow", "performance", "hotspot", "latency"):
		return kindByName("performance")
	case containsAny(lower, "memory", "leak", "heap", "alloc"):
		return kindByName("memory")
	case containsAny(lower, "complexity", "refactor", "maintainab"):
		return kindByName("complexity")
	case containsAny(lower, "security", "vulnerab", "exploit", "injection"):
		return kindByName("security")
	case containsAny(lower, "dependency", "dependencies", "outdated", "upgrade"):
		return kindByName("dependencies")
	case containsAny(lower, "coverage", "untested"):
		return kindByName("coverage")
	default:
		return kindByName("static")
	}
}

func kindByName(name string) analysisKind {
	for _, kind := range analysisKinds {
		if kind.name == name {
			return kind
		}
	}
	return analysisKinds[0]
}

// extractFencedContent returns the inner text of the first fenced block in
// the message, without the fence marker lines.
func extractFencedContent(text string) string {
	for _, b := range splitFencedBlocks(text) {
		if !b.fenced {
			continue
		}
		lines := strings.SplitAfter(b.text, "\n")
		if len(lines) < 2 {
			return ""
		}
		inner := strings.Join(lines[1:], "")
		// Drop the closing marker line when present.
		if idx := indexFence(inner, 0); idx >= 0 {
			inner = inner[:idx]
		}
		return strings.TrimSpace(inner)
	}
	return ""
}

// formatFindings builds a formatter that renders a summary line followed by
// the items under the given JSON key. It returns "" when the payload carries
// neither a summary nor items, signalling unparseable output.
func formatFindings(itemsKey, heading string, line func(item gjson.Result) string) func(parsed gjson.Result) string {
	return func(parsed gjson.Result) string {
		summary := parsed.Get("summary").String()
		items := parsed.Get(itemsKey).Array()
		if summary == "" && len(items) == 0 {
			return ""
		}

		var sb strings.Builder
		sb.WriteString("## " + heading + "\n\n")
		if summary != "" {
			sb.WriteString(summary + "\n\n")
		}
		for _, item := range items {
			sb.WriteString("- " + line(item) + "\n")
		}
		return strings.TrimSpace(sb.String())
	}
}
