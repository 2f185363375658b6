// Package retrieve ranks indexed chunks against an analyzed query: vector
// similarity with optional keyword widening and reranking, confidence
// scoring, and per-document/page grouping. Multi-hop reasoning for complex
// questions builds on the same engine.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// ChunkStore is the slice of the vector store the engine needs.
type ChunkStore interface {
	SearchSimilar(ctx context.Context, embedding *pgvector.Vector, documentIDs []string, limit int) ([]*vectorstore.Chunk, error)
	KeywordSearch(ctx context.Context, keywords []string, documentIDs []string, limit int) ([]*vectorstore.Chunk, error)
}

// Options tune the engine.
type Options struct {
	TopK            int
	MinChunkChars   int     // quality filter: shorter chunks are dropped pre-ranking
	SimilarityFloor float64 // quality filter: lower-scored chunks are dropped pre-ranking
}

// DefaultOptions mirror config defaults.
func DefaultOptions() Options {
	return Options{TopK: 8, MinChunkChars: 20, SimilarityFloor: 0.25}
}

// Result is one retrieval outcome. Strategy and Confidence are advisory
// signals for the caller; they never gate whether chunks are returned.
type Result struct {
	Chunks     []*vectorstore.Chunk
	Strategy   string
	Confidence float64
}

// Engine executes retrieval strategies.
type Engine struct {
	store   ChunkStore
	invoker *invoke.Invoker
	opts    Options
	logger  *zap.Logger
}

// NewEngine creates an engine. logger may be nil.
func NewEngine(store ChunkStore, invoker *invoke.Invoker, opts Options, logger *zap.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, invoker: invoker, opts: opts, logger: logger}
}

// Retrieve embeds the expanded query, searches the requested documents, and
// returns ranked, attributed chunks. An empty result is a valid outcome,
// distinct from an error.
func (e *Engine) Retrieve(ctx context.Context, analysis *query.Analysis, documentIDs []string, useReranking, useKeywordSearch bool) (*Result, error) {
	if len(documentIDs) == 0 {
		return &Result{Strategy: "none", Confidence: 0}, nil
	}

	vec, _, err := e.invoker.Embed(ctx, analysis.ExpandedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	pv := pgvector.NewVector(vec)

	candidates, err := e.store.SearchSimilar(ctx, &pv, documentIDs, e.opts.TopK*2)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	strategy := "vector"

	if useKeywordSearch && len(analysis.Keywords) > 0 {
		lexical, err := e.store.KeywordSearch(ctx, analysis.Keywords, documentIDs, e.opts.TopK)
		if err != nil {
			// Lexical widening is best-effort; the vector pass stands alone.
			e.logger.Warn("keyword search failed", zap.Error(err))
		} else if len(lexical) > 0 {
			candidates = e.merge(candidates, lexical)
			strategy += "+keyword"
		}
	}

	candidates = e.restrict(candidates, documentIDs)
	candidates = e.qualityFilter(candidates)

	if useReranking {
		rerank(candidates, analysis.Keywords)
		strategy += "+rerank"
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > e.opts.TopK {
		candidates = candidates[:e.opts.TopK]
	}

	result := &Result{
		Chunks:     candidates,
		Strategy:   strategy,
		Confidence: Confidence(candidates),
	}
	e.logger.Debug("retrieval complete",
		zap.String("strategy", strategy),
		zap.Int("chunks", len(candidates)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// merge folds lexical matches into the vector candidate set. A chunk found
// only lexically enters at the similarity floor: above the noise cutoff but
// below every vector hit, so reranking decides its final position.
func (e *Engine) merge(vectorHits, lexicalHits []*vectorstore.Chunk) []*vectorstore.Chunk {
	byID := make(map[uuid.UUID]*vectorstore.Chunk, len(vectorHits))
	for _, c := range vectorHits {
		byID[c.ID] = c
	}
	merged := vectorHits
	for _, c := range lexicalHits {
		if _, ok := byID[c.ID]; ok {
			continue
		}
		c.Similarity = e.opts.SimilarityFloor
		merged = append(merged, c)
	}
	return merged
}

// restrict drops any chunk outside the requested corpus. The store already
// filters; this keeps the guarantee even if a backend misbehaves.
func (e *Engine) restrict(chunks []*vectorstore.Chunk, documentIDs []string) []*vectorstore.Chunk {
	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}
	kept := chunks[:0]
	for _, c := range chunks {
		if allowed[c.DocumentID] {
			kept = append(kept, c)
		}
	}
	return kept
}

// qualityFilter drops low-value chunks before ranking so noise never
// occupies a result slot.
func (e *Engine) qualityFilter(chunks []*vectorstore.Chunk) []*vectorstore.Chunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if len([]rune(c.Content)) < e.opts.MinChunkChars {
			continue
		}
		if c.Similarity < e.opts.SimilarityFloor {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// rerank boosts chunks that also match the expanded keywords lexically.
// A small bounded boost: lexical agreement breaks similarity near-ties
// without letting keyword stuffing dominate.
func rerank(chunks []*vectorstore.Chunk, keywords []string) {
	if len(keywords) == 0 {
		return
	}
	for _, c := range chunks {
		content := strings.ToLower(c.Content)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				matches++
			}
		}
		boost := 0.05 * float64(matches)
		if boost > 0.15 {
			boost = 0.15
		}
		c.Similarity += boost
		if c.Similarity > 1 {
			c.Similarity = 1
		}
	}
}

// Confidence summarizes result quality in [0,1]: the mean of the top three
// similarities, damped by their spread. Tight, high clusters score high;
// empty results score zero. Advisory only.
func Confidence(chunks []*vectorstore.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	n := len(chunks)
	if n > 3 {
		n = 3
	}
	sum, lo, hi := 0.0, chunks[0].Similarity, chunks[0].Similarity
	for _, c := range chunks[:n] {
		sum += c.Similarity
		if c.Similarity < lo {
			lo = c.Similarity
		}
		if c.Similarity > hi {
			hi = c.Similarity
		}
	}
	conf := (sum / float64(n)) * (1 - (hi-lo)/2)
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
