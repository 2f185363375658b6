// Package query analyzes user questions before retrieval: language detection,
// cross-lingual normalization, intent classification, and keyword expansion.
package query

import (
	"context"
	"strings"

	"github.com/kutub-ai/cli/internal/invoke"
	"go.uber.org/zap"
)

// Analysis is the per-question result consumed immediately by retrieval.
// Not persisted.
type Analysis struct {
	OriginalQuery        string
	TranslatedQuery      string // empty when no translation was needed
	DetectedLanguage     Language
	ExpandedQuery        string // search query + keywords; the embedding input
	QueryType            string
	Keywords             []string
	IsMultiDocumentQuery bool
}

// SearchQuery returns the string retrieval should operate on: the
// translation when one was made, the original otherwise.
func (a *Analysis) SearchQuery() string {
	if a.TranslatedQuery != "" {
		return a.TranslatedQuery
	}
	return a.OriginalQuery
}

// Analyzer turns a raw question into an Analysis.
type Analyzer struct {
	invoker *invoke.Invoker
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer. logger may be nil.
func NewAnalyzer(invoker *invoke.Invoker, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{invoker: invoker, logger: logger}
}

// Analyze detects the query language, translates it toward the document
// language when they differ, classifies its intent, and expands it with
// keywords. The comparative pattern battery overrides the model classifier:
// it is cheap, reliable signal the model sometimes misses.
func (a *Analyzer) Analyze(ctx context.Context, queryText string, docLang Language) (*Analysis, error) {
	analysis := &Analysis{
		OriginalQuery:    queryText,
		DetectedLanguage: DetectLanguage(queryText),
	}

	if analysis.DetectedLanguage != docLang && analysis.DetectedLanguage != LangMixed {
		translated := a.invoker.Translate(ctx, queryText, string(analysis.DetectedLanguage), string(docLang))
		if translated != queryText {
			analysis.TranslatedQuery = translated
		}
		a.logger.Debug("query translated",
			zap.String("from", string(analysis.DetectedLanguage)),
			zap.String("to", string(docLang)))
	}

	analysis.IsMultiDocumentQuery = IsComparative(queryText)

	analysis.QueryType = a.invoker.Classify(ctx, queryText)
	if analysis.IsMultiDocumentQuery {
		analysis.QueryType = invoke.TypeComparative
	}

	searchQuery := analysis.SearchQuery()
	analysis.Keywords = a.invoker.ExpandKeywords(ctx, searchQuery)
	analysis.ExpandedQuery = strings.TrimSpace(searchQuery + " " + strings.Join(analysis.Keywords, " "))

	return analysis, nil
}
