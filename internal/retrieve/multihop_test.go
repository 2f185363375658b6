package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReasoner(store ChunkStore) *Reasoner {
	inv := invoke.New(retrieveClient{}, []string{"m1"}, nil, []string{"e1"}, 4, nil)
	engine := NewEngine(store, inv, DefaultOptions(), nil)
	analyzer := query.NewAnalyzer(inv, nil)
	return NewReasoner(engine, analyzer, inv, nil, NewContextBuilder(2000), nil)
}

func TestReasonAccumulatesAcrossHops(t *testing.T) {
	hop1 := []*vectorstore.Chunk{chunk("doc-a", 1, 0.9, filler)}
	hop2 := []*vectorstore.Chunk{chunk("doc-b", 2, 0.8, filler)}
	store := &fakeStore{similar: [][]*vectorstore.Chunk{hop1, hop2, nil}}
	r := newTestReasoner(store)

	composite, err := r.Reason(context.Background(),
		"What is common between book A and book B?",
		[]string{"doc-a", "doc-b"},
		map[string]string{"doc-a": "Book A", "doc-b": "Book B"},
		query.LangEnglish, 3, "en", false, false)
	require.NoError(t, err)

	assert.Equal(t, 2, composite.Hops)
	assert.Equal(t, 2, composite.ChunksUsed)
	assert.Contains(t, composite.Context, "Book A")
	assert.Contains(t, composite.Context, "Book B")
	assert.Greater(t, composite.Confidence, 0.0)
}

func TestReasonStopsWhenNothingNew(t *testing.T) {
	repeated := []*vectorstore.Chunk{chunk("doc-a", 1, 0.9, filler)}
	store := &fakeStore{similar: [][]*vectorstore.Chunk{repeated, repeated, repeated}}
	r := newTestReasoner(store)

	composite, err := r.Reason(context.Background(), "long comparative question about both books and their themes",
		[]string{"doc-a"}, nil, query.LangEnglish, 3, "en", false, false)
	require.NoError(t, err)

	// Later hops return the same chunk ids, so only the first hop
	// contributes and the loop ends early.
	assert.Equal(t, 1, composite.ChunksUsed)
	assert.LessOrEqual(t, composite.Hops, 2)
}

func TestReasonHonorsHopBudget(t *testing.T) {
	store := &fakeStore{similar: [][]*vectorstore.Chunk{
		{chunk("doc-a", 1, 0.9, filler)},
		{chunk("doc-a", 2, 0.9, filler)},
		{chunk("doc-a", 3, 0.9, filler)},
		{chunk("doc-a", 4, 0.9, filler)},
	}}
	r := newTestReasoner(store)

	composite, err := r.Reason(context.Background(), "q", []string{"doc-a"}, nil,
		query.LangEnglish, 2, "en", false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, composite.Hops)
	assert.Equal(t, 2, store.calls)
}

func TestReasonOrRetrieveFallsBackToSingleHop(t *testing.T) {
	store := &fakeStore{
		searchErrs: []error{errors.New("vector index down"), nil},
		similar:    [][]*vectorstore.Chunk{{chunk("doc-a", 1, 0.9, filler)}},
	}
	r := newTestReasoner(store)

	composite, err := r.ReasonOrRetrieve(context.Background(), "q", []string{"doc-a"}, nil,
		query.LangEnglish, 3, "en", false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, composite.Hops)
	assert.Equal(t, 1, composite.ChunksUsed)
}

func TestReasonArabicResponseHeader(t *testing.T) {
	store := &fakeStore{similar: [][]*vectorstore.Chunk{{chunk("doc-a", 1, 0.9, filler)}, nil}}
	r := newTestReasoner(store)

	composite, err := r.Reason(context.Background(), "ما المشترك بين الكتابين؟",
		[]string{"doc-a"}, nil, query.LangArabic, 2, "ar", false, false)
	require.NoError(t, err)
	assert.Contains(t, composite.Context, "مقتطفات من الكتب")
}
