// Package correct detects likely OCR corruption in extracted text and repairs
// it through the model cascade under strict acceptance bounds. A failed
// correction never degrades stored data: the original text is kept.
package correct

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Acceptance bounds for a model-corrected text relative to the original.
const (
	maxLengthDeviation = 0.30
	maxArabicDeviation = 0.20
)

// ChunkStore is the slice of the vector store the corrector needs.
type ChunkStore interface {
	ListChunksByDocument(ctx context.Context, documentID string) ([]*vectorstore.Chunk, error)
	UpdateChunkText(ctx context.Context, id uuid.UUID, content string, embedding *pgvector.Vector, corrected bool) error
}

// Corrector runs the correction and validation loop.
type Corrector struct {
	invoker         *invoke.Invoker
	store           ChunkStore
	batchSize       int
	interBatchDelay time.Duration
	logger          *zap.Logger
}

// New creates a corrector. store may be nil for inline (pre-chunking) use.
func New(invoker *invoke.Invoker, store ChunkStore, batchSize int, interBatchDelay time.Duration, logger *zap.Logger) *Corrector {
	if batchSize <= 0 {
		batchSize = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrector{
		invoker:         invoker,
		store:           store,
		batchSize:       batchSize,
		interBatchDelay: interBatchDelay,
		logger:          logger,
	}
}

// Validate checks the acceptance bounds: corrected length within 30% of the
// original, Arabic character count within 20%.
func Validate(original, corrected string) error {
	origLen := len([]rune(original))
	corrLen := len([]rune(corrected))
	if origLen == 0 {
		return fmt.Errorf("original text is empty")
	}
	lengthDev := absFloat(float64(corrLen-origLen)) / float64(origLen)
	if lengthDev > maxLengthDeviation {
		return fmt.Errorf("length deviation %.2f exceeds %.2f", lengthDev, maxLengthDeviation)
	}

	origAr := countArabic(original)
	corrAr := countArabic(corrected)
	if origAr > 0 {
		arabicDev := absFloat(float64(corrAr-origAr)) / float64(origAr)
		if arabicDev > maxArabicDeviation {
			return fmt.Errorf("arabic character deviation %.2f exceeds %.2f", arabicDev, maxArabicDeviation)
		}
	}
	return nil
}

// CorrectText repairs text if it matches a corruption pattern. Returns the
// (possibly unchanged) text and whether a correction was accepted. A text
// with no pattern match performs zero model calls. Full cascade failure is
// not an error: the original is returned unchanged.
func (c *Corrector) CorrectText(ctx context.Context, text string, aggressive bool) (string, bool) {
	if !aggressive && !IsSuspect(text) {
		return text, false
	}

	prompt := fmt.Sprintf(
		"The following text was extracted from a scanned Arabic book and may contain "+
			"OCR artifacts: misplaced hamza, confused taa marbuta endings, broken letters, "+
			"stray punctuation spacing. Fix spelling and diacritic errors while preserving "+
			"the meaning, wording, and length. Return only the corrected text.\n\n%s", text)

	res, err := c.invoker.Complete(ctx, invoke.TaskCorrectText, prompt,
		invoke.WithAccept(func(candidate string) error {
			return Validate(text, candidate)
		}))
	if err != nil {
		// Never degrade data on correction failure.
		c.logger.Debug("correction cascade exhausted, keeping original", zap.Error(err))
		return text, false
	}
	return res.Text, true
}

// Report summarizes a maintenance sweep.
type Report struct {
	Examined  int
	Suspect   int
	Corrected int
	Failed    int
}

// CorrectChunks runs the correction loop over stored chunks in small batches
// with an inter-batch delay, persisting accepted corrections together with
// their fresh embeddings. Per-chunk failures are counted, never fatal.
func (c *Corrector) CorrectChunks(ctx context.Context, chunks []*vectorstore.Chunk, aggressive bool) (*Report, error) {
	report := &Report{}

	for start := 0; start < len(chunks); start += c.batchSize {
		end := start + c.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		for _, chunk := range chunks[start:end] {
			report.Examined++
			rules := MatchedRules(chunk.Content)
			if !aggressive && len(rules) == 0 {
				continue
			}
			report.Suspect++
			c.logger.Debug("chunk flagged for correction",
				zap.String("chunk", chunk.ID.String()),
				zap.Strings("rules", rules))

			corrected, changed := c.CorrectText(ctx, chunk.Content, aggressive)
			if !changed {
				continue
			}

			// Text and embedding are rewritten together; an embedding must
			// always reflect its co-located text.
			vec, _, err := c.invoker.Embed(ctx, corrected)
			if err != nil {
				report.Failed++
				c.logger.Warn("re-embedding failed, correction discarded",
					zap.String("chunk", chunk.ID.String()), zap.Error(err))
				continue
			}
			pv := pgvector.NewVector(vec)
			if err := c.store.UpdateChunkText(ctx, chunk.ID, corrected, &pv, true); err != nil {
				report.Failed++
				c.logger.Warn("persisting correction failed",
					zap.String("chunk", chunk.ID.String()), zap.Error(err))
				continue
			}
			chunk.Content = corrected
			chunk.Corrected = true
			report.Corrected++
		}

		if end < len(chunks) && c.interBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(c.interBatchDelay):
			}
		}
	}

	c.logger.Info("correction sweep finished",
		zap.Int("examined", report.Examined),
		zap.Int("suspect", report.Suspect),
		zap.Int("corrected", report.Corrected),
		zap.Int("failed", report.Failed))
	return report, nil
}

// SweepDocument runs the maintenance sweep over every chunk of a document.
func (c *Corrector) SweepDocument(ctx context.Context, documentID string, aggressive bool) (*Report, error) {
	chunks, err := c.store.ListChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for sweep: %w", err)
	}
	return c.CorrectChunks(ctx, chunks, aggressive)
}

func countArabic(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			n++
		}
	}
	return n
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
