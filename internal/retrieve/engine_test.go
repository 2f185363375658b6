package retrieve

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/ollama"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves scripted search results.
type fakeStore struct {
	similar    [][]*vectorstore.Chunk // consumed per SearchSimilar call
	lexical    []*vectorstore.Chunk
	searchErrs []error // consumed per SearchSimilar call; nil means success
	calls      int
}

func (f *fakeStore) SearchSimilar(_ context.Context, _ *pgvector.Vector, _ []string, _ int) ([]*vectorstore.Chunk, error) {
	f.calls++
	if len(f.searchErrs) > 0 {
		err := f.searchErrs[0]
		f.searchErrs = f.searchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.similar) == 0 {
		return nil, nil
	}
	out := f.similar[0]
	if len(f.similar) > 1 {
		f.similar = f.similar[1:]
	}
	return out, nil
}

func (f *fakeStore) KeywordSearch(_ context.Context, _ []string, _ []string, _ int) ([]*vectorstore.Chunk, error) {
	return f.lexical, nil
}

// retrieveClient answers analyzer and derive-sub-query prompts.
type retrieveClient struct{}

func (retrieveClient) Generate(_ context.Context, req *ollama.GenerateRequest) (string, error) {
	switch {
	case strings.Contains(req.Prompt, "Classify"):
		return "thematic", nil
	case strings.Contains(req.Prompt, "keywords"):
		return "patience, wisdom", nil
	case strings.Contains(req.Prompt, "follow-up"):
		return "What does the second book say about patience?", nil
	}
	return "ok", nil
}

func (c retrieveClient) GenerateStream(ctx context.Context, req *ollama.GenerateRequest, onChunk func(string)) error {
	text, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}
	onChunk(text)
	return nil
}

func (retrieveClient) Embed(context.Context, string, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func chunk(doc string, page int, sim float64, content string) *vectorstore.Chunk {
	return &vectorstore.Chunk{
		ID:         uuid.New(),
		DocumentID: doc,
		PageNumber: page,
		Content:    content,
		Similarity: sim,
	}
}

func testAnalysis(keywords ...string) *query.Analysis {
	return &query.Analysis{
		OriginalQuery: "q",
		ExpandedQuery: "q " + strings.Join(keywords, " "),
		Keywords:      keywords,
	}
}

func newTestEngine(store ChunkStore) *Engine {
	inv := invoke.New(retrieveClient{}, []string{"m1"}, nil, []string{"e1"}, 4, nil)
	return NewEngine(store, inv, DefaultOptions(), nil)
}

const filler = "a long enough chunk of content to pass the quality filter"

func TestRetrieveNeverReturnsForeignDocuments(t *testing.T) {
	store := &fakeStore{similar: [][]*vectorstore.Chunk{{
		chunk("doc-a", 1, 0.9, filler),
		chunk("doc-z", 1, 0.95, filler), // outside the requested corpus
	}}}
	engine := newTestEngine(store)

	res, err := engine.Retrieve(context.Background(), testAnalysis(), []string{"doc-a"}, false, false)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "doc-a", res.Chunks[0].DocumentID)
}

func TestRetrieveQualityFilter(t *testing.T) {
	store := &fakeStore{similar: [][]*vectorstore.Chunk{{
		chunk("doc-a", 1, 0.9, filler),
		chunk("doc-a", 2, 0.9, "tiny"), // too short
		chunk("doc-a", 3, 0.1, filler), // below similarity floor
	}}}
	engine := newTestEngine(store)

	res, err := engine.Retrieve(context.Background(), testAnalysis(), []string{"doc-a"}, false, false)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 1, res.Chunks[0].PageNumber)
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	store := &fakeStore{}
	engine := newTestEngine(store)

	res, err := engine.Retrieve(context.Background(), testAnalysis(), []string{"doc-a"}, false, false)
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.Confidence)
}

func TestRetrieveKeywordWideningAndStrategy(t *testing.T) {
	lex := chunk("doc-a", 7, 0, "lexical match with plenty of content for the filter")
	store := &fakeStore{
		similar: [][]*vectorstore.Chunk{{chunk("doc-a", 1, 0.9, filler)}},
		lexical: []*vectorstore.Chunk{lex},
	}
	engine := newTestEngine(store)

	res, err := engine.Retrieve(context.Background(), testAnalysis("patience"), []string{"doc-a"}, false, true)
	require.NoError(t, err)
	assert.Equal(t, "vector+keyword", res.Strategy)
	require.Len(t, res.Chunks, 2)
	// Lexical-only hits enter at the similarity floor, below every vector hit.
	assert.Equal(t, 1, res.Chunks[0].PageNumber)
	assert.Equal(t, 7, res.Chunks[1].PageNumber)
}

func TestRerankBoostsKeywordMatchesBounded(t *testing.T) {
	matched := chunk("doc-a", 1, 0.5, "this chunk talks about patience and wisdom at length")
	plain := chunk("doc-a", 2, 0.5, filler)
	rerank([]*vectorstore.Chunk{matched, plain}, []string{"patience", "wisdom", "x", "y", "z"})

	assert.InDelta(t, 0.6, matched.Similarity, 1e-9)
	assert.InDelta(t, 0.5, plain.Similarity, 1e-9)

	capped := chunk("doc-a", 3, 0.99, "patience wisdom x y z all present here somehow")
	rerank([]*vectorstore.Chunk{capped}, []string{"patience", "wisdom", "x", "y", "z"})
	assert.LessOrEqual(t, capped.Similarity, 1.0)
}

func TestConfidenceProperties(t *testing.T) {
	assert.Zero(t, Confidence(nil))

	tight := []*vectorstore.Chunk{
		chunk("d", 1, 0.9, filler), chunk("d", 2, 0.88, filler), chunk("d", 3, 0.89, filler),
	}
	spread := []*vectorstore.Chunk{
		chunk("d", 1, 0.9, filler), chunk("d", 2, 0.4, filler), chunk("d", 3, 0.3, filler),
	}
	tightConf := Confidence(tight)
	spreadConf := Confidence(spread)
	assert.Greater(t, tightConf, spreadConf)
	assert.LessOrEqual(t, tightConf, 1.0)
	assert.GreaterOrEqual(t, spreadConf, 0.0)
}

func TestGroupByDocument(t *testing.T) {
	chunks := []*vectorstore.Chunk{
		chunk("doc-b", 3, 0.8, filler),
		chunk("doc-a", 5, 0.6, filler),
		chunk("doc-b", 1, 0.4, filler),
		chunk("doc-a", 5, 0.3, filler),
	}
	groups := GroupByDocument(chunks)
	require.Len(t, groups, 2)

	// doc-b leads: best similarity 0.8, tier high.
	assert.Equal(t, "doc-b", groups[0].DocumentID)
	assert.Equal(t, TierHigh, groups[0].Tier)
	require.Len(t, groups[0].Pages, 2)
	assert.Equal(t, 1, groups[0].Pages[0].PageNumber)
	assert.Equal(t, 3, groups[0].Pages[1].PageNumber)

	assert.Equal(t, "doc-a", groups[1].DocumentID)
	assert.Equal(t, TierMedium, groups[1].Tier)
	require.Len(t, groups[1].Pages, 1)
	assert.Len(t, groups[1].Pages[0].Chunks, 2)
}

func TestIsComplex(t *testing.T) {
	comparative := &query.Analysis{IsMultiDocumentQuery: true}
	assert.True(t, IsComplex("compare them", comparative))

	assert.True(t, IsComplex("What is patience? And what is wisdom?", nil))
	assert.True(t, IsComplex("Summarize chapter one and also list the key figures", nil))
	assert.False(t, IsComplex("What is the main theme?", nil))
}
