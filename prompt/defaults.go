package prompt

// Whitelisted template names. Only these may be requested from the Engine;
// asking for anything else is a programming error, not a runtime fallback.
const (
	TemplateClassifyIntent    = "classify_intent"
	TemplatePersona           = "persona"
	TemplateConversationReply = "conversation_reply"
	TemplateConversationStyle = "conversation_style"
	TemplateKnowledgeQuality  = "knowledge_quality"
	TemplateKnowledgeAnswer   = "knowledge_answer"
	TemplateResearchOptimize  = "research_optimize"
	TemplateSupportConfirm    = "support_confirm"
	TemplateSupportAnswer     = "support_answer"
	TemplateTicketAnalysis    = "ticket_analysis"
	TemplateTicketWelcome     = "ticket_welcome"
	TemplateCodeKindSelect    = "code_kind_select"
	TemplateCodeStatic        = "code_static"
	TemplateCodePerformance   = "code_performance"
	TemplateCodeMemory        = "code_memory"
	TemplateCodeComplexity    = "code_complexity"
	TemplateCodeSecurity      = "code_security"
	TemplateCodeDependencies  = "code_dependencies"
	TemplateCodeCoverage      = "code_coverage"
)

// AllowedNames enumerates every template name the engine will serve.
func AllowedNames() []string {
	return []string{
		TemplateClassifyIntent,
		TemplatePersona,
		TemplateConversationReply,
		TemplateConversationStyle,
		TemplateKnowledgeQuality,
		TemplateKnowledgeAnswer,
		TemplateResearchOptimize,
		TemplateSupportConfirm,
		TemplateSupportAnswer,
		TemplateTicketAnalysis,
		TemplateTicketWelcome,
		TemplateCodeKindSelect,
		TemplateCodeStatic,
		TemplateCodePerformance,
		TemplateCodeMemory,
		TemplateCodeComplexity,
		TemplateCodeSecurity,
		TemplateCodeDependencies,
		TemplateCodeCoverage,
	}
}

// defaultTemplates are the built-in sources used when no FileStore override
// is supplied. Deployments typically replace these with curated files.
var defaultTemplates = map[string]string{
	TemplateClassifyIntent: `Classify the following user message into exactly one category.
Categories: ticket, knowledge, support, code, research, conversation.
Reply with the category name only, nothing else.

Message: {{message}}`,

	TemplatePersona: `You are a friendly support assistant for this community.
Answer the question about yourself briefly and honestly.

Question: {{message}}`,

	TemplateConversationReply: `You are a helpful, concise support assistant.
{{#if history}}Recent conversation:
{{#each history}}{{role}}: {{content}}
{{/each}}{{/if}}{{#if research_results}}Relevant research:
{{research_results}}
{{/if}}Reply to the user in a {{style}} tone.

User: {{message}}`,

	TemplateConversationStyle: `Analyze the tone and intent of this message.
Return JSON of the shape {"style": "casual|formal|frustrated", "intent": "question|statement|request"}.

Message: {{message}}`,

	TemplateKnowledgeQuality: `Rate the quality of this knowledge entry for a shared knowledge base.
Reply with JSON {"acceptable": true|false, "reason": "..."}.

Title: {{title}}
Content: {{content}}`,

	TemplateKnowledgeAnswer: `Answer the question using only the knowledge entries below.
{{#each entries}}[{{index}}] {{title}}: {{content}}
{{/each}}
Question: {{message}}`,

	TemplateResearchOptimize: `Rewrite the following search query to be precise and keyword focused.
Reply with the rewritten query only.

Query: {{query}}`,

	TemplateSupportConfirm: `A user reported the issue below. Should a support ticket be opened?
Reply with yes or no only.

Issue: {{message}}
Severity score: {{severity}}`,

	TemplateSupportAnswer: `You are a support engineer. Provide a short, actionable answer.
{{#if research_results}}Background research:
{{research_results}}
{{/if}}Issue: {{message}}`,

	TemplateTicketAnalysis: `Analyze this support request and return JSON of the shape
{"priority": "low|medium|high|urgent", "category": "...", "summary": "one sentence"}.

Request: {{message}}`,

	TemplateTicketWelcome: `Hello {{user}}, thanks for reaching out. Ticket {{ticket_id}} has been opened.
{{#if summary}}Summary: {{summary}}
{{/if}}A member of our team will be with you shortly. Please add any details here.`,

	TemplateCodeKindSelect: `Pick the single most fitting analysis kind for this request.
Kinds: static, performance, memory, complexity, security, dependencies, coverage.
Reply with the kind only.

Request: {{message}}`,

	TemplateCodeStatic: `Perform a static analysis of the code below. Return JSON
{"issues": [{"line": n, "severity": "...", "message": "..."}], "summary": "..."}.

Code:
{{code}}`,

	TemplateCodePerformance: `Analyze the code below for performance problems. Return JSON
{"hotspots": [{"location": "...", "impact": "...", "suggestion": "..."}], "summary": "..."}.

Code:
{{code}}`,

	TemplateCodeMemory: `Analyze the profiling data below for memory issues. Return JSON
{"leaks": [{"site": "...", "evidence": "..."}], "summary": "..."}.

Profile:
{{profile}}`,

	TemplateCodeComplexity: `Assess the complexity of the code below. Return JSON
{"functions": [{"name": "...", "complexity": n}], "summary": "..."}.

Code:
{{code}}`,

	TemplateCodeSecurity: `Review the code below for security vulnerabilities. Return JSON
{"findings": [{"kind": "...", "severity": "...", "detail": "..."}], "summary": "..."}.

Code:
{{code}}`,

	TemplateCodeDependencies: `Review the dependency list below. Return JSON
{"outdated": [{"name": "...", "advice": "..."}], "summary": "..."}.

Dependencies:
{{code}}`,

	TemplateCodeCoverage: `Review the coverage report below. Return JSON
{"gaps": [{"area": "...", "risk": "..."}], "summary": "..."}.

Report:
{{code}}`,
}

// DefaultStore returns a StaticStore preloaded with the built-in templates.
func DefaultStore() *StaticStore {
	return NewStaticStore(defaultTemplates)
}
