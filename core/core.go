package core

import "github.com/google/uuid"

// Category classifies an inbound message into one of the fixed request
// categories handled by the framework. Categories map one-to-one onto
// capability agents; the zero value is not a valid category.
type Category string

const (
	// CategoryTicket covers requests that should open a support ticket.
	CategoryTicket Category = "ticket"
	// CategoryKnowledge covers knowledge-base queries and contributions.
	CategoryKnowledge Category = "knowledge"
	// CategorySupport covers troubleshooting and help requests.
	CategorySupport Category = "support"
	// CategoryCode covers code analysis requests.
	CategoryCode Category = "code"
	// CategoryResearch covers requests requiring external search.
	CategoryResearch Category = "research"
	// CategoryConversation is the terminal fallback for everything else.
	CategoryConversation Category = "conversation"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTicket, CategoryKnowledge, CategorySupport, CategoryCode, CategoryResearch, CategoryConversation:
		return true
	}
	return false
}

// ParseCategory maps a raw (possibly noisy) string onto a Category. The
// boolean reports whether a known category was recognized.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if c.Valid() {
		return c, true
	}
	return CategoryConversation, false
}

// Message is an inbound user request. It is immutable once received; the
// GuildContext map carries opaque platform metadata (server, channel, roles)
// owned by the excluded gateway layer and is never mutated by the core.
type Message struct {
	Text         string
	SenderID     string
	GuildContext map[string]any
}

// NewID generates a unique identifier used for request correlation and
// resource (ticket, entry) identity throughout the framework.
func NewID() string { return uuid.NewString() }
