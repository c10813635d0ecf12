package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/hupe1980/deskmesh/search"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *prompt.Engine {
	t.Helper()
	engine, err := prompt.NewEngine(nil)
	require.NoError(t, err)
	return engine
}

func rcFor(text string) *core.RunContext {
	return core.NewRunContext(context.Background(), core.NewID(), core.Message{Text: text, SenderID: "u1"}, nil)
}

func rcWithVars(text string, vars map[string]any) *core.RunContext {
	return rcFor(text).WithVars(vars)
}

// fakeHistory is an in-memory core.HistoryStore with failure injection.
type fakeHistory struct {
	mu      sync.Mutex
	entries map[string][]core.HistoryEntry
	addErr  error
	getErr  error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: make(map[string][]core.HistoryEntry)}
}

func (f *fakeHistory) GetHistory(userID string, limit int) ([]core.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	all := f.entries[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]core.HistoryEntry(nil), all...), nil
}

func (f *fakeHistory) AddEntry(userID, content string, isGenerated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	role := "user"
	if isGenerated {
		role = "assistant"
	}
	f.entries[userID] = append(f.entries[userID], core.HistoryEntry{Role: role, Content: content})
	return nil
}

func (f *fakeHistory) ClearHistory(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, userID)
	return nil
}

func (f *fakeHistory) len(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[userID])
}

// fakeKnowledge is an in-memory core.KnowledgeStore with call accounting.
type fakeKnowledge struct {
	mu          sync.Mutex
	entries     []core.KnowledgeEntry
	searchErr   error
	searchCalls int
	incremented []string
}

func (f *fakeKnowledge) Search(q core.KnowledgeQuery) ([]core.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []core.KnowledgeEntry
	for _, e := range f.entries {
		if q.VerifiedOnly && !e.Verified {
			continue
		}
		if !matchesQuery(e, q.Text) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// matchesQuery approximates keyword search: any query token of four or more
// characters appearing in the entry is a hit.
func matchesQuery(e core.KnowledgeEntry, text string) bool {
	if text == "" {
		return true
	}
	hay := strings.ToLower(e.Title + " " + e.Content)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if len(token) >= 4 && strings.Contains(hay, token) {
			return true
		}
	}
	return false
}

func (f *fakeKnowledge) Create(entry core.KnowledgeEntry) (core.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = fmt.Sprintf("kb-%d", len(f.entries)+1)
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeKnowledge) IncrementUseCount(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incremented = append(f.incremented, id)
	return nil
}

func (f *fakeKnowledge) Rate(id string, rating int) (core.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			e := &f.entries[i]
			e.Rating = (e.Rating*float64(e.RatingCount) + float64(rating)) / float64(e.RatingCount+1)
			e.RatingCount++
			return *e, nil
		}
	}
	return core.KnowledgeEntry{}, fmt.Errorf("entry %s not found", id)
}

func (f *fakeKnowledge) Verify(id, moderatorID string) (core.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Verified = true
			f.entries[i].VerifiedBy = moderatorID
			return f.entries[i], nil
		}
	}
	return core.KnowledgeEntry{}, fmt.Errorf("entry %s not found", id)
}

func (f *fakeKnowledge) incrementedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.incremented...)
}

func verifiedEntry(id, title, content string) core.KnowledgeEntry {
	return core.KnowledgeEntry{ID: id, Title: title, Content: content, Category: "technical", Verified: true}
}

// fakeSearch is a scripted search.Client recording every query.
type fakeSearch struct {
	mu      sync.Mutex
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeSearch) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// fakeTickets is an in-memory core.TicketStore.
type fakeTickets struct {
	mu       sync.Mutex
	tickets  []core.Ticket
	messages []string
	staff    []string
}

func (f *fakeTickets) Create(ticket core.Ticket) (core.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, ticket)
	return ticket, nil
}

func (f *fakeTickets) FindOpenByUser(userID string) (*core.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].UserID == userID && f.tickets[i].Status == "open" {
			t := f.tickets[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeTickets) AddMessage(ticketID, userID, content string, internal bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, ticketID+":"+content)
	return nil
}

func (f *fakeTickets) LeastLoadedAgents(n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.staff) > n {
		return f.staff[:n], nil
	}
	return f.staff, nil
}

// fakeChannels records created channels and posted messages.
type fakeChannels struct {
	mu      sync.Mutex
	created []string
	posts   map[string][]string
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{posts: make(map[string][]string)}
}

func (f *fakeChannels) CreateTicketChannel(userID, ticketID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "chan-" + ticketID
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeChannels) PostMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[channelID] = append(f.posts[channelID], content)
	return nil
}

func (f *fakeChannels) postsTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts[channelID]...)
}

// fakeDelegate is a canned core.Agent used to observe delegation.
type fakeDelegate struct {
	mu       sync.Mutex
	response core.Response
	calls    int
}

func (f *fakeDelegate) Name() string                { return "delegate" }
func (f *fakeDelegate) Description() string         { return "test delegate" }
func (f *fakeDelegate) CanHandle(core.Message) bool { return true }

func (f *fakeDelegate) Process(*core.RunContext) (core.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, nil
}

func (f *fakeDelegate) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
