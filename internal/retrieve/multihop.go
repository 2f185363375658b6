package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/vectorstore"
	"go.uber.org/zap"
)

// Composite is the output of multi-hop reasoning: one formatted context
// assembled across hops. Intermediate hop results are not surfaced.
type Composite struct {
	Context    string
	Hops       int
	ChunksUsed int
	Confidence float64
}

// TextCorrector optionally cleans retrieved text before it is folded into
// the composite context. Corrections here are presentation-only.
type TextCorrector interface {
	CorrectText(ctx context.Context, text string, aggressive bool) (string, bool)
}

// Reasoner chains retrievals for comparative/complex questions.
type Reasoner struct {
	engine    *Engine
	analyzer  *query.Analyzer
	invoker   *invoke.Invoker
	corrector TextCorrector
	builder   *ContextBuilder
	logger    *zap.Logger
}

// NewReasoner creates a reasoner. corrector and logger may be nil.
func NewReasoner(engine *Engine, analyzer *query.Analyzer, invoker *invoke.Invoker, corrector TextCorrector, builder *ContextBuilder, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = NewContextBuilder(0)
	}
	return &Reasoner{
		engine:    engine,
		analyzer:  analyzer,
		invoker:   invoker,
		corrector: corrector,
		builder:   builder,
		logger:    logger,
	}
}

// multiPartCues mark questions that bundle several asks into one.
var multiPartCues = []string{
	" and also ", " as well as ", "furthermore", "ثم ", " وكذلك ", " وأيضا ",
}

// IsComplex reports whether a query warrants multi-hop reasoning:
// comparative questions, multi-part questions, or unusually long ones.
func IsComplex(queryText string, analysis *query.Analysis) bool {
	if analysis != nil && analysis.IsMultiDocumentQuery {
		return true
	}
	lower := strings.ToLower(queryText)
	for _, cue := range multiPartCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	if strings.Count(queryText, "?")+strings.Count(queryText, "؟") > 1 {
		return true
	}
	return len([]rune(queryText)) > 120
}

// Reason executes up to maxHops retrieve-then-refine rounds, folding newly
// found chunks into an accumulating context and stopping early once a round
// adds nothing. docNames resolves document ids for attribution; docLang is
// the dominant corpus language.
func (r *Reasoner) Reason(
	ctx context.Context,
	queryText string,
	documentIDs []string,
	docNames map[string]string,
	docLang query.Language,
	maxHops int,
	responseLang string,
	correctSpelling bool,
	aggressive bool,
) (*Composite, error) {
	if maxHops <= 0 {
		maxHops = 3
	}

	seen := make(map[uuid.UUID]bool)
	var gathered []*vectorstore.Chunk
	var bestConfidence float64
	subQuery := queryText
	hops := 0

	for hop := 1; hop <= maxHops; hop++ {
		analysis, err := r.analyzer.Analyze(ctx, subQuery, docLang)
		if err != nil {
			return nil, fmt.Errorf("hop %d: query analysis failed: %w", hop, err)
		}
		result, err := r.engine.Retrieve(ctx, analysis, documentIDs, true, true)
		if err != nil {
			return nil, fmt.Errorf("hop %d: retrieval failed: %w", hop, err)
		}

		var fresh []*vectorstore.Chunk
		for _, c := range result.Chunks {
			if !seen[c.ID] {
				seen[c.ID] = true
				fresh = append(fresh, c)
			}
		}
		if len(fresh) == 0 {
			// The corpus has nothing new to say; stop burning hops.
			break
		}
		hops = hop
		gathered = append(gathered, fresh...)
		if result.Confidence > bestConfidence {
			bestConfidence = result.Confidence
		}
		r.logger.Debug("hop complete",
			zap.Int("hop", hop),
			zap.Int("new_chunks", len(fresh)),
			zap.Float64("confidence", result.Confidence))

		if hop == maxHops {
			break
		}
		next, err := r.deriveSubQuery(ctx, queryText, gathered)
		if err != nil || next == "" {
			break
		}
		subQuery = next
	}

	if correctSpelling && r.corrector != nil {
		for _, c := range gathered {
			c.Content, _ = r.corrector.CorrectText(ctx, c.Content, aggressive)
		}
	}

	composite := &Composite{
		Hops:       hops,
		ChunksUsed: len(gathered),
		Confidence: bestConfidence,
	}
	composite.Context = r.builder.BuildContext(&Result{
		Chunks:     gathered,
		Strategy:   fmt.Sprintf("multihop(%d)", hops),
		Confidence: bestConfidence,
	}, docNames)
	if responseLang == "ar" && composite.Context != "" {
		composite.Context = "مقتطفات من الكتب:\n\n" + composite.Context
	}
	return composite, nil
}

// deriveSubQuery asks the model which follow-up question would best fill the
// gaps in the gathered context. Failure here just ends the hop loop.
func (r *Reasoner) deriveSubQuery(ctx context.Context, original string, gathered []*vectorstore.Chunk) (string, error) {
	var sample strings.Builder
	for i, c := range gathered {
		if i >= 5 {
			break
		}
		excerpt := []rune(c.Content)
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		sample.WriteString(string(excerpt))
		sample.WriteString("\n---\n")
	}

	prompt := fmt.Sprintf(
		"Original question: %s\n\nExcerpts found so far:\n%s\n"+
			"What single follow-up search question, in the same language as the original, "+
			"would best fill the remaining gaps? Return only the question.",
		original, sample.String())

	res, err := r.invoker.Complete(ctx, invoke.TaskGenerateAnswer, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// ReasonOrRetrieve runs multi-hop reasoning and degrades to single-hop
// retrieval on any internal failure, so a reasoning bug never fails the
// whole request.
func (r *Reasoner) ReasonOrRetrieve(
	ctx context.Context,
	queryText string,
	documentIDs []string,
	docNames map[string]string,
	docLang query.Language,
	maxHops int,
	responseLang string,
	correctSpelling bool,
	aggressive bool,
) (*Composite, error) {
	composite, err := r.Reason(ctx, queryText, documentIDs, docNames, docLang, maxHops, responseLang, correctSpelling, aggressive)
	if err == nil {
		return composite, nil
	}
	r.logger.Warn("multi-hop reasoning failed, falling back to single-hop", zap.Error(err))

	analysis, err := r.analyzer.Analyze(ctx, queryText, docLang)
	if err != nil {
		return nil, err
	}
	result, err := r.engine.Retrieve(ctx, analysis, documentIDs, true, true)
	if err != nil {
		return nil, err
	}
	return &Composite{
		Context:    r.builder.BuildContext(result, docNames),
		Hops:       1,
		ChunksUsed: len(result.Chunks),
		Confidence: result.Confidence,
	}, nil
}
