package retrieve

import (
	"fmt"
	"strings"
)

// ContextBuilder formats retrieval results into the context block handed to
// answer generation.
type ContextBuilder struct {
	maxTokens int
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = 2000 // Default
	}
	return &ContextBuilder{maxTokens: maxTokens}
}

// BuildContext renders a result grouped by document and page, with source
// attribution on every excerpt. Document names resolve through docNames
// (id -> display name); ids are shown raw when absent.
func (cb *ContextBuilder) BuildContext(result *Result, docNames map[string]string) string {
	if result == nil || len(result.Chunks) == 0 {
		return ""
	}

	var parts []string
	for _, group := range GroupByDocument(result.Chunks) {
		name := docNames[group.DocumentID]
		if name == "" {
			name = group.DocumentID
		}
		parts = append(parts, fmt.Sprintf("## %s", name))
		for _, page := range group.Pages {
			for _, chunk := range page.Chunks {
				parts = append(parts, fmt.Sprintf("[p. %d]", page.PageNumber))
				parts = append(parts, chunk.Content)
				parts = append(parts, "")
			}
		}
	}

	context := strings.Join(parts, "\n")

	// Truncate if too long (simple token estimation: ~4 chars per token)
	maxChars := cb.maxTokens * 4
	if runes := []rune(context); len(runes) > maxChars {
		context = string(runes[:maxChars]) + "\n\n[Context truncated...]"
	}

	return context
}

// BuildPrompt assembles the answer-generation prompt. Low retrieval
// confidence adds a hedging instruction rather than suppressing the context.
func (cb *ContextBuilder) BuildPrompt(context, userQuery string, confidence float64, responseLang string) string {
	var parts []string

	parts = append(parts, "You are a careful assistant answering questions about books in a personal library.")
	parts = append(parts, "Base your answer on the excerpts below and cite the page numbers you relied on.")
	parts = append(parts, "")

	if context != "" {
		parts = append(parts, "## Excerpts:")
		parts = append(parts, context)
		parts = append(parts, "")
	} else {
		parts = append(parts, "No relevant excerpts were found for this question.")
		parts = append(parts, "Say so plainly instead of inventing content.")
		parts = append(parts, "")
	}

	if confidence > 0 && confidence < 0.4 {
		parts = append(parts, "The excerpts may only partially cover the question; say clearly what they do not answer.")
		parts = append(parts, "")
	}

	parts = append(parts, "## Question:")
	parts = append(parts, userQuery)
	parts = append(parts, "")

	switch responseLang {
	case "ar":
		parts = append(parts, "أجب باللغة العربية.")
	case "en":
		parts = append(parts, "Answer in English.")
	}

	return strings.Join(parts, "\n")
}
