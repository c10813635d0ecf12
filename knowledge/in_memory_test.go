package knowledge

import (
	"testing"

	"github.com/hupe1980/deskmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, s *InMemoryStore, entry core.KnowledgeEntry) core.KnowledgeEntry {
	t.Helper()
	created, err := s.Create(entry)
	require.NoError(t, err)
	return created
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	s := NewInMemoryStore()

	created := mustCreate(t, s, core.KnowledgeEntry{Title: "Webhook retries", Content: "Five attempts with backoff.", Category: "technical"})

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestSearchRanksByUseCountThenRating(t *testing.T) {
	s := NewInMemoryStore()
	low := mustCreate(t, s, core.KnowledgeEntry{Title: "Deploy basics", Content: "How deploys work.", Verified: true, UseCount: 1, Rating: 5})
	popular := mustCreate(t, s, core.KnowledgeEntry{Title: "Deploy pipeline", Content: "Pipeline stages for deploys.", Verified: true, UseCount: 9, Rating: 2})
	rated := mustCreate(t, s, core.KnowledgeEntry{Title: "Deploy rollbacks", Content: "Rolling back deploys.", Verified: true, UseCount: 1, Rating: 4.5})

	results, err := s.Search(core.KnowledgeQuery{Text: "deploy"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, popular.ID, results[0].ID, "use count dominates")
	assert.Equal(t, low.ID, results[1].ID, "rating breaks ties")
	assert.Equal(t, rated.ID, results[2].ID)
}

func TestSearchVerifiedOnlyFilter(t *testing.T) {
	s := NewInMemoryStore()
	mustCreate(t, s, core.KnowledgeEntry{Title: "Draft guidance", Content: "Unreviewed deploy notes."})
	verified := mustCreate(t, s, core.KnowledgeEntry{Title: "Reviewed guidance", Content: "Reviewed deploy notes.", Verified: true})

	results, err := s.Search(core.KnowledgeQuery{Text: "deploy", VerifiedOnly: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, verified.ID, results[0].ID)

	all, err := s.Search(core.KnowledgeQuery{Text: "deploy"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchCategoryAndTagFilters(t *testing.T) {
	s := NewInMemoryStore()
	mustCreate(t, s, core.KnowledgeEntry{Title: "Invoice schedule", Content: "Invoices monthly.", Category: "billing", Tags: []string{"invoices"}, Verified: true})
	tagged := mustCreate(t, s, core.KnowledgeEntry{Title: "Invoice disputes", Content: "Dispute window is 30 days.", Category: "billing", Tags: []string{"invoices", "disputes"}, Verified: true})

	results, err := s.Search(core.KnowledgeQuery{Category: "billing", Tags: []string{"disputes"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tagged.ID, results[0].ID)

	none, err := s.Search(core.KnowledgeQuery{Category: "technical"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchLimit(t *testing.T) {
	s := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		mustCreate(t, s, core.KnowledgeEntry{Title: "Deploy note", Content: "Deploy content.", Verified: true})
	}

	results, err := s.Search(core.KnowledgeQuery{Text: "deploy", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRateUsesRunningMean(t *testing.T) {
	s := NewInMemoryStore()
	created := mustCreate(t, s, core.KnowledgeEntry{Title: "Rated entry", Content: "Content."})

	updated, err := s.Rate(created.ID, 5)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, updated.Rating, 0.001)

	updated, err = s.Rate(created.ID, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, updated.Rating, 0.001)
	assert.Equal(t, 2, updated.RatingCount)
}

func TestRateRejectsOutOfRange(t *testing.T) {
	s := NewInMemoryStore()
	created := mustCreate(t, s, core.KnowledgeEntry{Title: "Rated entry", Content: "Content."})

	_, err := s.Rate(created.ID, 6)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestIncrementUseCount(t *testing.T) {
	s := NewInMemoryStore()
	created := mustCreate(t, s, core.KnowledgeEntry{Title: "Counted entry", Content: "Content.", Verified: true})

	require.NoError(t, s.IncrementUseCount(created.ID))
	require.NoError(t, s.IncrementUseCount(created.ID))

	results, err := s.Search(core.KnowledgeQuery{Text: "counted"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].UseCount)

	assert.Error(t, s.IncrementUseCount("missing"))
}

func TestVerify(t *testing.T) {
	s := NewInMemoryStore()
	created := mustCreate(t, s, core.KnowledgeEntry{Title: "Pending entry", Content: "Content."})

	updated, err := s.Verify(created.ID, "mod-1")
	require.NoError(t, err)
	assert.True(t, updated.Verified)
	assert.Equal(t, "mod-1", updated.VerifiedBy)

	_, err = s.Verify("missing", "mod-1")
	assert.Error(t, err)
}

func TestSearchResultsAreCopies(t *testing.T) {
	s := NewInMemoryStore()
	mustCreate(t, s, core.KnowledgeEntry{Title: "Stable entry", Content: "Content.", Verified: true})

	results, err := s.Search(core.KnowledgeQuery{Text: "stable"})
	require.NoError(t, err)
	results[0].Title = "mutated"

	again, err := s.Search(core.KnowledgeQuery{Text: "stable"})
	require.NoError(t, err)
	assert.Equal(t, "Stable entry", again[0].Title)
}
