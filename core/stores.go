package core

import "time"

// HistoryEntry is a single conversational turn kept by a HistoryStore.
type HistoryEntry struct {
	Role    string
	Content string
}

// HistoryStore persists bounded per-user conversation history. Implementations
// decide retention; the conversation agent only ever asks for a recent window.
type HistoryStore interface {
	GetHistory(userID string, limit int) ([]HistoryEntry, error)
	AddEntry(userID, content string, isGenerated bool) error
	ClearHistory(userID string) error
}

// KnowledgeEntry is a curated knowledge-base record.
type KnowledgeEntry struct {
	ID          string
	Title       string
	Content     string
	Category    string
	Tags        []string
	AuthorID    string
	Verified    bool
	VerifiedBy  string
	UseCount    int
	Rating      float64
	RatingCount int
	CreatedAt   time.Time
}

// KnowledgeQuery narrows a knowledge search.
type KnowledgeQuery struct {
	Text         string
	Category     string
	Tags         []string
	VerifiedOnly bool
	Limit        int
}

// KnowledgeStore persists knowledge entries. Search ranks by use count then
// rating; implementations own the matching strategy.
type KnowledgeStore interface {
	Search(q KnowledgeQuery) ([]KnowledgeEntry, error)
	Create(entry KnowledgeEntry) (KnowledgeEntry, error)
	IncrementUseCount(id string) error
	Rate(id string, rating int) (KnowledgeEntry, error)
	Verify(id, moderatorID string) (KnowledgeEntry, error)
}

// Ticket is a persisted support ticket record.
type Ticket struct {
	ID         string
	UserID     string
	ChannelID  string
	Priority   string
	Category   string
	Summary    string
	Status     string
	AssigneeID string
	CreatedAt  time.Time
}

// TicketStore persists tickets and answers staffing questions for
// notification routing.
type TicketStore interface {
	Create(ticket Ticket) (Ticket, error)
	FindOpenByUser(userID string) (*Ticket, error)
	AddMessage(ticketID, userID, content string, internal bool) error

	// LeastLoadedAgents returns up to n active staff identifiers ordered by
	// ascending open-ticket count, used to build staff notifications.
	LeastLoadedAgents(n int) ([]string, error)
}

// ChannelProvider creates and posts to isolated conversation resources on
// the chat platform. It belongs to the excluded gateway layer and is only
// specified at this boundary.
type ChannelProvider interface {
	// CreateTicketChannel creates an access-restricted channel visible to the
	// user and staff, returning its identifier.
	CreateTicketChannel(userID, ticketID string) (string, error)
	PostMessage(channelID, content string) error
}

// MetricsSink receives orchestration counters. Implementations must be safe
// for concurrent use; all methods are fire-and-forget.
type MetricsSink interface {
	RecordRequest()
	RecordError(kind ErrorKind)
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheEviction()
}

// NoOpMetrics discards all metrics. Useful default when no sink is injected.
type NoOpMetrics struct{}

// RecordRequest implements MetricsSink.
func (NoOpMetrics) RecordRequest() {}

// RecordError implements MetricsSink.
func (NoOpMetrics) RecordError(ErrorKind) {}

// RecordCacheHit implements MetricsSink.
func (NoOpMetrics) RecordCacheHit() {}

// RecordCacheMiss implements MetricsSink.
func (NoOpMetrics) RecordCacheMiss() {}

// RecordCacheEviction implements MetricsSink.
func (NoOpMetrics) RecordCacheEviction() {}
