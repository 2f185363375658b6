package invoke

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// QueryType classifications assigned by the classify task.
const (
	TypeNarrative   = "narrative"
	TypeAnalytical  = "analytical"
	TypeFactual     = "factual"
	TypeThematic    = "thematic"
	TypeComparative = "comparative"
)

var knownTypes = []string{TypeNarrative, TypeAnalytical, TypeFactual, TypeThematic, TypeComparative}

// Translate translates text between languages. On full cascade failure the
// original text is returned unchanged; translation never raises.
func (inv *Invoker) Translate(ctx context.Context, text, fromLang, toLang string) string {
	prompt := fmt.Sprintf(
		"Translate the following %s text to %s. Return only the translation, nothing else.\n\n%s",
		languageName(fromLang), languageName(toLang), text)

	res, err := inv.Complete(ctx, TaskTranslate, prompt)
	if err != nil {
		inv.logger.Warn("translation fell back to original text", zap.Error(err))
		return text
	}
	return res.Text
}

// Classify assigns one of the five query types. On full cascade failure the
// deterministic default is "thematic".
func (inv *Invoker) Classify(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(
		"Classify this question about books into exactly one category: "+
			"narrative, analytical, factual, thematic, or comparative. "+
			"Answer with the single category word only.\n\nQuestion: %s", query)

	res, err := inv.Complete(ctx, TaskClassify, prompt, WithAccept(func(s string) error {
		if parseQueryType(s) == "" {
			return fmt.Errorf("unrecognized query type %q", s)
		}
		return nil
	}))
	if err != nil {
		inv.logger.Warn("classification fell back to default", zap.Error(err))
		return TypeThematic
	}
	return parseQueryType(res.Text)
}

// ExpandKeywords suggests 3-5 search keywords for a query. On full cascade
// failure a naive length-filtered token list is derived from the query itself.
func (inv *Invoker) ExpandKeywords(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(
		"Suggest 3 to 5 search keywords for this question, in the same language. "+
			"Return them comma-separated on a single line, nothing else.\n\nQuestion: %s", query)

	res, err := inv.Complete(ctx, TaskExpandKeywords, prompt)
	if err != nil {
		inv.logger.Warn("keyword expansion fell back to heuristic", zap.Error(err))
		return HeuristicKeywords(query)
	}
	keywords := splitKeywords(res.Text)
	if len(keywords) == 0 {
		return HeuristicKeywords(query)
	}
	return keywords
}

// parseQueryType extracts a known query type from a model response, or "".
func parseQueryType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range knownTypes {
		if strings.Contains(s, t) {
			return t
		}
	}
	return ""
}

// splitKeywords parses a comma- or newline-separated keyword line, capped at 5.
func splitKeywords(s string) []string {
	s = strings.NewReplacer("\n", ",", "،", ",", ";", ",").Replace(s)
	parts := strings.Split(s, ",")
	keywords := make([]string, 0, 5)
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), ".-*\"'")
		if p == "" {
			continue
		}
		keywords = append(keywords, p)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

// HeuristicKeywords is the deterministic keyword fallback: tokens longer than
// three runes, first five.
func HeuristicKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(query) {
		word = strings.Trim(word, ".,!?;:؟،\"'")
		if len([]rune(word)) > 3 {
			keywords = append(keywords, word)
			if len(keywords) == 5 {
				break
			}
		}
	}
	return keywords
}

func languageName(code string) string {
	switch code {
	case "ar":
		return "Arabic"
	case "en":
		return "English"
	default:
		return code
	}
}
