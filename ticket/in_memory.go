// Package ticket provides the in-memory reference implementations of the
// ticket store and channel provider contracts.
package ticket

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/deskmesh/core"
)

// message is one persisted ticket conversation entry.
type message struct {
	UserID   string
	Content  string
	Internal bool
	At       time.Time
}

// InMemoryStore is a volatile core.TicketStore. Staff members are registered
// up front; LeastLoadedAgents orders them by their open assigned tickets.
type InMemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*core.Ticket
	messages map[string][]message
	staff    []string
	now      func() time.Time
}

// NewInMemoryStore constructs an empty in-memory ticket store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tickets:  make(map[string]*core.Ticket),
		messages: make(map[string][]message),
		now:      time.Now,
	}
}

// AddStaff registers staff members eligible for ticket notifications.
func (s *InMemoryStore) AddStaff(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff = append(s.staff, ids...)
}

// Create stores a new ticket, assigning ID, status and creation time when
// unset.
func (s *InMemoryStore) Create(ticket core.Ticket) (core.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = core.NewID()
	}
	if ticket.Status == "" {
		ticket.Status = "open"
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}
	if _, exists := s.tickets[ticket.ID]; exists {
		return core.Ticket{}, fmt.Errorf("ticket %s already exists", ticket.ID)
	}

	stored := ticket
	s.tickets[ticket.ID] = &stored
	return ticket, nil
}

// FindOpenByUser returns the user's open ticket, or nil when none exists.
func (s *InMemoryStore) FindOpenByUser(userID string) (*core.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.UserID == userID && t.Status == "open" {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

// AddMessage appends a message to an existing ticket.
func (s *InMemoryStore) AddMessage(ticketID, userID, content string, internal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return fmt.Errorf("ticket %s not found", ticketID)
	}
	s.messages[ticketID] = append(s.messages[ticketID], message{
		UserID: userID, Content: content, Internal: internal, At: s.now(),
	})
	return nil
}

// Close marks a ticket resolved.
func (s *InMemoryStore) Close(ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %s not found", ticketID)
	}
	t.Status = "closed"
	return nil
}

// Assign sets the staff member responsible for a ticket.
func (s *InMemoryStore) Assign(ticketID, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %s not found", ticketID)
	}
	t.AssigneeID = staffID
	return nil
}

// LeastLoadedAgents returns up to n registered staff ordered by ascending
// open-ticket count; registration order breaks ties.
func (s *InMemoryStore) LeastLoadedAgents(n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	load := make(map[string]int, len(s.staff))
	for _, t := range s.tickets {
		if t.Status == "open" && t.AssigneeID != "" {
			load[t.AssigneeID]++
		}
	}

	ordered := append([]string(nil), s.staff...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return load[ordered[i]] < load[ordered[j]]
	})

	if n > 0 && len(ordered) > n {
		ordered = ordered[:n]
	}
	return ordered, nil
}

// InMemoryChannels is a volatile core.ChannelProvider recording channels and
// posts, useful for tests and local demos without a chat platform.
type InMemoryChannels struct {
	mu       sync.RWMutex
	channels map[string][]string
}

// NewInMemoryChannels constructs an empty channel provider.
func NewInMemoryChannels() *InMemoryChannels {
	return &InMemoryChannels{channels: make(map[string][]string)}
}

// CreateTicketChannel implements core.ChannelProvider.
func (c *InMemoryChannels) CreateTicketChannel(userID, ticketID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "ticket-" + ticketID
	if _, exists := c.channels[id]; exists {
		return "", fmt.Errorf("channel %s already exists", id)
	}
	c.channels[id] = nil
	return id, nil
}

// PostMessage implements core.ChannelProvider.
func (c *InMemoryChannels) PostMessage(channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.channels[channelID]; !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	c.channels[channelID] = append(c.channels[channelID], content)
	return nil
}

// Messages returns the messages posted to a channel, in order.
func (c *InMemoryChannels) Messages(channelID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.channels[channelID]...)
}
