package query

import "unicode"

// Language is a detected query/document language.
type Language string

const (
	LangArabic  Language = "ar"
	LangEnglish Language = "en"
	LangMixed   Language = "mixed"
)

// arabicRatioThresholds: above the upper bound the text is Arabic, below the
// lower bound it is English, in between it is mixed.
const (
	arabicUpper = 0.7
	arabicLower = 0.3
)

// isArabicRune reports whether r falls in an Arabic Unicode block.
func isArabicRune(r rune) bool {
	return unicode.In(r, unicode.Arabic)
}

// ArabicRatio returns the fraction of Arabic-block runes among the
// non-whitespace runes of text. Empty or all-whitespace text yields 0.
func ArabicRatio(text string) float64 {
	arabic, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isArabicRune(r) {
			arabic++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(arabic) / float64(total)
}

// DetectLanguage classifies text as Arabic, English, or mixed by its
// Arabic-rune ratio. Total: every string maps to exactly one language.
func DetectLanguage(text string) Language {
	ratio := ArabicRatio(text)
	switch {
	case ratio > arabicUpper:
		return LangArabic
	case ratio < arabicLower:
		return LangEnglish
	default:
		return LangMixed
	}
}
