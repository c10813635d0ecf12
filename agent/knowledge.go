package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/deskmesh/cache"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/hupe1980/deskmesh/ratelimit"
	"github.com/tidwall/gjson"
)

// Vars understood by the KnowledgeAgent.
const (
	// VarKnowledgeOp forces a specific operation ("save", "query"), used by
	// the orchestrator's prefix routing.
	VarKnowledgeOp = "knowledge_op"
	// VarModeratorID marks a privileged request allowed to verify entries.
	VarModeratorID = "moderator_id"
)

// KnowledgeCategories is the fixed category enumeration for entries.
var KnowledgeCategories = []string{"technical", "billing", "account", "general", "troubleshooting"}

var (
	tagPattern    = regexp.MustCompile(`^[a-z0-9-]{2,30}$`)
	ratePattern   = regexp.MustCompile(`(?i)\brate\s+entry\s+(\S+)\s+(?:with\s+)?([0-9]+)\b`)
	verifyPattern = regexp.MustCompile(`(?i)\bverify\s+entry\s+(\S+)`)
)

var savePhrases = []string{"remember this", "save this", "save to knowledge", "add to knowledge"}

// KnowledgeOptions configure a KnowledgeAgent.
type KnowledgeOptions struct {
	// QueryLimit bounds search results per query. Defaults to 5.
	QueryLimit int
	Logger     logging.Logger
}

// KnowledgeAgent serves knowledge-base queries, saves, ratings and
// verification. Saves and ratings are rate limited per user; queries that
// find fewer than two relevant entries signal the research fallback instead
// of returning a thin answer.
type KnowledgeAgent struct {
	BaseAgent
	store      core.KnowledgeStore
	limits     *ratelimit.Registry
	queryCache *cache.Manager
	queryLimit int
}

// NewKnowledgeAgent constructs a KnowledgeAgent.
func NewKnowledgeAgent(backend model.Backend, prompts *prompt.Engine, store core.KnowledgeStore, limits *ratelimit.Registry, queryCache *cache.Manager, optFns ...func(o *KnowledgeOptions)) *KnowledgeAgent {
	opts := KnowledgeOptions{QueryLimit: 5}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &KnowledgeAgent{
		BaseAgent:  NewBaseAgent("knowledge", "Knowledge base queries, contributions, ratings and verification", backend, prompts, opts.Logger),
		store:      store,
		limits:     limits,
		queryCache: queryCache,
		queryLimit: opts.QueryLimit,
	}
}

// CanHandle accepts knowledge-seeking or knowledge-saving phrasing.
func (a *KnowledgeAgent) CanHandle(msg core.Message) bool {
	return containsAny(msg.Text,
		"what is", "what are", "explain", "how does", "documentation",
		"knowledge", "faq", "guide", "remember this", "save this",
	)
}

// Process implements core.Agent.
func (a *KnowledgeAgent) Process(rc *core.RunContext) (core.Response, error) {
	switch a.detectOp(rc) {
	case "save":
		return a.save(rc)
	case "rate":
		return a.rate(rc)
	case "verify":
		return a.verify(rc)
	default:
		return a.query(rc)
	}
}

func (a *KnowledgeAgent) detectOp(rc *core.RunContext) string {
	if op := rc.StringVar(VarKnowledgeOp); op != "" {
		return op
	}
	text := strings.ToLower(rc.Message.Text)
	for _, phrase := range savePhrases {
		if strings.HasPrefix(text, phrase) {
			return "save"
		}
	}
	if ratePattern.MatchString(text) {
		return "rate"
	}
	if verifyPattern.MatchString(text) {
		return "verify"
	}
	return "query"
}

// query searches the knowledge store, falling back to the research signal
// when fewer than two relevant entries exist.
func (a *KnowledgeAgent) query(rc *core.RunContext) (core.Response, error) {
	// An augmented re-invocation carries research findings already.
	if research := rc.StringVar("research_results"); research != "" {
		return core.Response{Content: "I couldn't find enough in our knowledge base, but here is what research turned up:\n\n" + research}, nil
	}

	key := cache.Key("knowledge", rc.Message.Text)
	if cached, ok := a.queryCache.Get(key); ok {
		if resp, ok := cached.(core.Response); ok {
			return resp, nil
		}
	}

	entries, err := a.store.Search(core.KnowledgeQuery{
		Text:         deriveSearchQuery(rc.Message.Text),
		VerifiedOnly: true,
		Limit:        a.queryLimit,
	})
	if err != nil {
		return core.Response{}, fmt.Errorf("searching knowledge store: %w", err)
	}

	if len(entries) < 2 {
		return core.Response{
			Content:       "Our knowledge base doesn't cover this well yet, let me research it.",
			NeedsResearch: true,
			SearchQuery:   deriveSearchQuery(rc.Message.Text),
		}, nil
	}

	resp := core.Response{Content: a.renderAnswer(rc, entries)}
	resp = resp.WithMeta("entry_count", len(entries))
	a.queryCache.Set(key, resp)

	// Bookkeeping must never block or fail the response path.
	top := entries[0].ID
	go func() {
		if err := a.store.IncrementUseCount(top); err != nil {
			a.logger.Warn("incrementing use count failed", "entry_id", top, "error", err.Error())
		}
	}()

	return resp, nil
}

// renderAnswer asks the backend to synthesize a short answer over the
// matched entries and appends them as references. On backend failure the
// formatted entries stand alone.
func (a *KnowledgeAgent) renderAnswer(rc *core.RunContext, entries []core.KnowledgeEntry) string {
	answer, err := a.complete(rc, prompt.TemplateKnowledgeAnswer, map[string]any{
		"message": rc.Message.Text,
		"entries": entryVars(entries),
	}, 0.3, 512)
	if err != nil {
		a.logger.Warn("answer synthesis failed, returning entries only",
			"request_id", rc.RequestID, "error", err.Error())
		return formatEntries(entries)
	}
	return strings.TrimSpace(answer) + "\n\n" + formatEntries(entries)
}

func entryVars(entries []core.KnowledgeEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for i, e := range entries {
		out = append(out, map[string]any{
			"index":   i + 1,
			"title":   e.Title,
			"content": snippet(e.Content, 300),
		})
	}
	return out
}

func (a *KnowledgeAgent) save(rc *core.RunContext) (core.Response, error) {
	entry, err := parseSaveRequest(rc.Message.Text)
	if err != nil {
		return core.ErrorResponse(core.ErrorKindValidation, err.Error()), nil
	}
	entry.AuthorID = rc.UserID()

	if err := validateEntry(entry); err != nil {
		return core.ErrorResponse(core.ErrorKindValidation, err.Error()), nil
	}

	if dup, err := a.findDuplicate(entry); err == nil && dup != nil {
		return core.ErrorResponse(core.ErrorKindValidation,
			fmt.Sprintf("This looks like a duplicate of the existing entry %q.", dup.Title)), nil
	}

	// Admission happens only once the save is known to be well formed, so
	// rejected saves do not burn the creation budget.
	if ok, retryAfter := a.limits.Check(rc.UserID(), ratelimit.ActionKnowledgeCreate); !ok {
		return rateLimitedResponse("You've created a lot of entries recently.", retryAfter), nil
	}

	if reason, ok := a.qualityCheck(rc, entry); !ok {
		return core.ErrorResponse(core.ErrorKindValidation, "Entry rejected by quality check: "+reason), nil
	}

	created, err := a.store.Create(entry)
	if err != nil {
		return core.Response{}, fmt.Errorf("creating knowledge entry: %w", err)
	}

	resp := core.Response{Content: fmt.Sprintf("Saved %q to the knowledge base. It will show up in results once verified.", created.Title)}
	return resp.WithMeta("entry_id", created.ID), nil
}

func (a *KnowledgeAgent) rate(rc *core.RunContext) (core.Response, error) {
	if ok, retryAfter := a.limits.Check(rc.UserID(), ratelimit.ActionKnowledgeRate); !ok {
		return rateLimitedResponse("You're rating entries too quickly.", retryAfter), nil
	}

	m := ratePattern.FindStringSubmatch(rc.Message.Text)
	if m == nil {
		return core.ErrorResponse(core.ErrorKindValidation, "To rate an entry say: rate entry <id> <1-5>."), nil
	}
	rating, err := strconv.Atoi(m[2])
	if err != nil || rating < 1 || rating > 5 {
		return core.ErrorResponse(core.ErrorKindValidation, "Ratings must be between 1 and 5."), nil
	}

	updated, err := a.store.Rate(m[1], rating)
	if err != nil {
		return core.Response{}, fmt.Errorf("rating entry %s: %w", m[1], err)
	}

	resp := core.Response{Content: fmt.Sprintf("Thanks! %q now averages %.1f across %d ratings.", updated.Title, updated.Rating, updated.RatingCount)}
	return resp.WithMeta("entry_id", updated.ID), nil
}

func (a *KnowledgeAgent) verify(rc *core.RunContext) (core.Response, error) {
	moderatorID := rc.StringVar(VarModeratorID)
	if moderatorID == "" {
		return core.ErrorResponse(core.ErrorKindValidation, "Only moderators can verify knowledge entries."), nil
	}

	m := verifyPattern.FindStringSubmatch(rc.Message.Text)
	if m == nil {
		return core.ErrorResponse(core.ErrorKindValidation, "To verify an entry say: verify entry <id>."), nil
	}

	updated, err := a.store.Verify(m[1], moderatorID)
	if err != nil {
		return core.Response{}, fmt.Errorf("verifying entry %s: %w", m[1], err)
	}

	return core.Response{Content: fmt.Sprintf("Entry %q is now verified.", updated.Title)}, nil
}

// qualityCheck asks the backend whether the entry is acceptable. Any call or
// parse failure deterministically accepts the entry: the check is advisory.
func (a *KnowledgeAgent) qualityCheck(rc *core.RunContext, entry core.KnowledgeEntry) (string, bool) {
	raw, err := a.complete(rc, prompt.TemplateKnowledgeQuality, map[string]any{
		"title":   entry.Title,
		"content": entry.Content,
	}, 0.1, 128)
	if err != nil {
		return "", true
	}

	parsed := gjson.Parse(raw)
	acceptable := parsed.Get("acceptable")
	if !acceptable.Exists() {
		a.logger.Debug("quality check unparseable, accepting entry", "request_id", rc.RequestID)
		return "", true
	}
	if acceptable.Bool() {
		return "", true
	}
	reason := parsed.Get("reason").String()
	if reason == "" {
		reason = "the entry did not meet the quality bar"
	}
	return reason, false
}

// findDuplicate searches existing entries (verified or not) for a near
// duplicate of the candidate.
func (a *KnowledgeAgent) findDuplicate(entry core.KnowledgeEntry) (*core.KnowledgeEntry, error) {
	existing, err := a.store.Search(core.KnowledgeQuery{Text: entry.Title, VerifiedOnly: false, Limit: 10})
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if isNearDuplicate(entry, existing[i]) {
			return &existing[i], nil
		}
	}
	return nil, nil
}

// isNearDuplicate reports whether two entries are similar enough to reject:
// normalized title containment either way, or at least 85% shared content
// prefix after normalization.
func isNearDuplicate(a, b core.KnowledgeEntry) bool {
	titleA, titleB := normalizeText(a.Title), normalizeText(b.Title)
	if titleA != "" && titleB != "" && (strings.Contains(titleA, titleB) || strings.Contains(titleB, titleA)) {
		return true
	}
	return contentSimilarity(normalizeText(a.Content), normalizeText(b.Content)) >= 0.85
}

// contentSimilarity is the shared-prefix ratio of the shorter text.
func contentSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	common := 0
	for i := 0; i < len(short); i++ {
		if short[i] != long[i] {
			break
		}
		common++
	}
	return float64(common) / float64(len(short))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// validateEntry enforces the knowledge entry constraints.
func validateEntry(entry core.KnowledgeEntry) error {
	if l := len(entry.Title); l < 10 || l > 200 {
		return core.NewValidationError("title", "must be between 10 and 200 characters")
	}
	if l := len(entry.Content); l < 50 || l > 10000 {
		return core.NewValidationError("content", "must be between 50 and 10000 characters")
	}
	if !validCategory(entry.Category) {
		return core.NewValidationError("category", "must be one of: "+strings.Join(KnowledgeCategories, ", "))
	}
	if len(entry.Tags) < 1 || len(entry.Tags) > 10 {
		return core.NewValidationError("tags", "must list between 1 and 10 tags")
	}
	for _, tag := range entry.Tags {
		if !tagPattern.MatchString(tag) {
			return core.NewValidationError("tags", fmt.Sprintf("tag %q must match [a-z0-9-]{2,30}", tag))
		}
	}
	return nil
}

func validCategory(c string) bool {
	for _, known := range KnowledgeCategories {
		if c == known {
			return true
		}
	}
	return false
}

// parseSaveRequest extracts an entry from free-form save phrasing:
// the first line (after the save phrase) is the title, optional
// "category: x" and "tags: a, b" lines are picked up anywhere, everything
// else forms the content.
func parseSaveRequest(text string) (core.KnowledgeEntry, error) {
	stripped := text
	lower := strings.ToLower(text)
	for _, phrase := range savePhrases {
		if strings.HasPrefix(lower, phrase) {
			stripped = strings.TrimLeft(text[len(phrase):], ":, \t\n")
			break
		}
	}

	entry := core.KnowledgeEntry{Category: "general"}
	var contentLines []string
	for i, line := range strings.Split(stripped, "\n") {
		trimmed := strings.TrimSpace(line)
		lowerLine := strings.ToLower(trimmed)
		switch {
		case i == 0:
			entry.Title = trimmed
		case strings.HasPrefix(lowerLine, "category:"):
			entry.Category = strings.TrimSpace(trimmed[len("category:"):])
		case strings.HasPrefix(lowerLine, "tags:"):
			for _, tag := range strings.Split(trimmed[len("tags:"):], ",") {
				if tag = strings.TrimSpace(strings.ToLower(tag)); tag != "" {
					entry.Tags = append(entry.Tags, tag)
				}
			}
		default:
			contentLines = append(contentLines, line)
		}
	}
	entry.Content = strings.TrimSpace(strings.Join(contentLines, "\n"))

	if entry.Title == "" {
		return entry, core.NewValidationError("title", "the first line of a save request is the title and must not be empty")
	}
	return entry, nil
}

// deriveSearchQuery turns a question into a keyword query by dropping
// leading question phrasing and trailing punctuation.
func deriveSearchQuery(text string) string {
	query := strings.TrimSpace(text)
	lower := strings.ToLower(query)
	for _, lead := range []string{"what is", "what are", "how does", "how do i", "explain", "tell me about"} {
		if strings.HasPrefix(lower, lead) {
			query = strings.TrimSpace(query[len(lead):])
			break
		}
	}
	query = strings.TrimRight(query, "?!. ")
	if query == "" {
		query = strings.TrimSpace(text)
	}
	return query
}

func formatEntries(entries []core.KnowledgeEntry) string {
	var sb strings.Builder
	sb.WriteString("Here's what our knowledge base says:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. **%s**\n%s\n", i+1, e.Title, snippet(e.Content, 300))
		if len(e.Tags) > 0 {
			fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
