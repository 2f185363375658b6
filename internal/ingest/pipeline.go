// Package ingest turns a PDF into embedded, searchable chunks: native text
// extraction with a vision-OCR fallback, overlapping chunking, per-chunk
// embedding, and provenance-tracked persistence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/ollama"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/registry"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// ErrNoPagesExtracted is returned when no page of a document yielded text;
// only then is the whole document marked failed.
var ErrNoPagesExtracted = errors.New("no pages could be extracted")

// minChunkableChars: pages yielding less than this from both extraction
// methods are image-only and skipped without failing the document.
const minChunkableChars = 10

// Registry is the slice of the document registry the pipeline needs.
type Registry interface {
	CreateDocument(ctx context.Context, id, displayName string) (*registry.Document, error)
	SetTotalPages(ctx context.Context, id string, totalPages int) error
	SetStatus(ctx context.Context, id, status string) error
	FinishDocument(ctx context.Context, id string, chunksCount int, status string) error
}

// ChunkStore is the slice of the vector store the pipeline needs.
type ChunkStore interface {
	InsertChunksBatch(ctx context.Context, chunks []*vectorstore.Chunk) error
}

// TextCorrector optionally cleans freshly extracted page text before
// chunking.
type TextCorrector interface {
	CorrectText(ctx context.Context, text string, aggressive bool) (string, bool)
}

// Options tune the pipeline.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	MinPageChars    int           // below this, native extraction falls back to OCR
	OCRScale        float64       // raster upscale factor for OCR renders
	InterPageDelay  time.Duration // smooths model-service rate-limit pressure
	QuotaBackoff    time.Duration // single retry delay for quota-failed embeddings
	CorrectOnIngest bool          // run inline correction on Arabic pages
}

// DefaultOptions mirror config defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		MinPageChars:   100,
		OCRScale:       2.0,
		InterPageDelay: 500 * time.Millisecond,
		QuotaBackoff:   5 * time.Second,
	}
}

// Pipeline ingests documents. Pages are processed sequentially per document
// to bound memory and rate-limit pressure; distinct documents may be
// ingested concurrently by distinct callers.
type Pipeline struct {
	registry  Registry
	chunks    ChunkStore
	invoker   *invoke.Invoker
	corrector TextCorrector
	opts      Options
	open      func(path string, scale float64) (PageSource, error)
	logger    *zap.Logger
}

// New creates a pipeline. corrector may be nil; logger may be nil.
func New(reg Registry, chunks ChunkStore, invoker *invoke.Invoker, corrector TextCorrector, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		registry:  reg,
		chunks:    chunks,
		invoker:   invoker,
		corrector: corrector,
		opts:      opts,
		open:      OpenPDF,
		logger:    logger,
	}
}

// IngestFile registers and ingests one PDF. onProgress, when non-nil, is
// called after each page with (page, totalPages). Returns the new document
// id; the document ends completed unless zero pages were extractable.
func (p *Pipeline) IngestFile(ctx context.Context, path, displayName string, onProgress func(page, total int)) (string, error) {
	docID := uuid.New().String()
	if _, err := p.registry.CreateDocument(ctx, docID, displayName); err != nil {
		return "", fmt.Errorf("failed to register document: %w", err)
	}
	if err := p.registry.SetStatus(ctx, docID, registry.StatusProcessing); err != nil {
		return docID, err
	}

	src, err := p.open(path, p.opts.OCRScale)
	if err != nil {
		p.finishFailed(ctx, docID)
		return docID, fmt.Errorf("failed to open document: %w", err)
	}
	defer src.Close()

	totalPages := src.NumPages()
	if err := p.registry.SetTotalPages(ctx, docID, totalPages); err != nil {
		p.finishFailed(ctx, docID)
		return docID, err
	}

	pagesExtracted := 0
	totalChunks := 0
	for page := 0; page < totalPages; page++ {
		n, err := p.processPage(ctx, src, docID, page)
		if err != nil {
			if ctx.Err() != nil {
				p.finishFailed(ctx, docID)
				return docID, ctx.Err()
			}
			// A failed page is skipped, never fatal for the document.
			p.logger.Warn("page skipped",
				zap.String("document", docID),
				zap.Int("page", page+1),
				zap.Error(err))
		} else if n > 0 {
			pagesExtracted++
			totalChunks += n
		}

		if onProgress != nil {
			onProgress(page+1, totalPages)
		}
		if page < totalPages-1 && p.opts.InterPageDelay > 0 {
			select {
			case <-ctx.Done():
				p.finishFailed(ctx, docID)
				return docID, ctx.Err()
			case <-time.After(p.opts.InterPageDelay):
			}
		}
	}

	if pagesExtracted == 0 {
		p.finishFailed(ctx, docID)
		return docID, ErrNoPagesExtracted
	}

	if err := p.registry.FinishDocument(ctx, docID, totalChunks, registry.StatusCompleted); err != nil {
		return docID, err
	}
	p.logger.Info("document ingested",
		zap.String("document", docID),
		zap.Int("pages", pagesExtracted),
		zap.Int("chunks", totalChunks))
	return docID, nil
}

// processPage extracts, optionally OCRs and corrects, chunks, embeds, and
// stores one page. Returns the number of chunks stored.
func (p *Pipeline) processPage(ctx context.Context, src PageSource, docID string, page int) (int, error) {
	native, err := src.Text(page)
	if err != nil {
		native = ""
	}
	native = strings.TrimSpace(native)

	// Arabic pages force the OCR path: native extraction of Arabic script in
	// scanned books is unreliable even when it returns enough characters.
	text := native
	if len([]rune(native)) < p.opts.MinPageChars || query.ArabicRatio(native) > 0.3 {
		if ocrText, ocrErr := p.ocrPage(ctx, src, page); ocrErr == nil && ocrText != "" {
			text = ocrText
		} else if ocrErr != nil {
			p.logger.Warn("OCR fallback failed, using native text",
				zap.String("document", docID),
				zap.Int("page", page+1),
				zap.Error(ocrErr))
		}
	}

	if len([]rune(text)) < minChunkableChars {
		// Image-only page, nothing to index.
		return 0, nil
	}

	if p.opts.CorrectOnIngest && p.corrector != nil && query.ArabicRatio(text) > 0.3 {
		text, _ = p.corrector.CorrectText(ctx, text, false)
	}

	parts := SplitText(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	var chunks []*vectorstore.Chunk
	for idx, part := range parts {
		if len([]rune(strings.TrimSpace(part))) < minChunkableChars {
			continue
		}
		vec, err := p.embedWithBackoff(ctx, part)
		if err != nil {
			// Chunk-level partial failure is tolerated.
			p.logger.Warn("chunk embedding failed",
				zap.String("document", docID),
				zap.Int("page", page+1),
				zap.Int("chunk", idx),
				zap.Error(err))
			continue
		}
		pv := pgvector.NewVector(vec)
		chunks = append(chunks, &vectorstore.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			PageNumber: page + 1,
			ChunkIndex: idx,
			Content:    part,
			Embedding:  &pv,
		})
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := p.chunks.InsertChunksBatch(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	return len(chunks), nil
}

func (p *Pipeline) ocrPage(ctx context.Context, src PageSource, page int) (string, error) {
	png, err := src.RenderPNG(page)
	if err != nil {
		return "", err
	}
	res, err := p.invoker.OCRPage(ctx, png)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// embedWithBackoff embeds one chunk, backing off once on a quota-type
// failure before giving up on that chunk.
func (p *Pipeline) embedWithBackoff(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := p.invoker.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if !ollama.IsQuotaErr(err) {
		return nil, err
	}
	p.logger.Info("embedding quota hit, backing off",
		zap.Duration("backoff", p.opts.QuotaBackoff))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.opts.QuotaBackoff):
	}
	vec, _, err = p.invoker.Embed(ctx, text)
	return vec, err
}

func (p *Pipeline) finishFailed(ctx context.Context, docID string) {
	if err := p.registry.FinishDocument(ctx, docID, 0, registry.StatusFailed); err != nil {
		p.logger.Warn("failed to mark document failed",
			zap.String("document", docID),
			zap.Error(err))
	}
}
