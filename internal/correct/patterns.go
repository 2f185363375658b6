package correct

import "regexp"

// corruptionRule pairs a pattern with the OCR failure mode it flags. The
// battery is a cheap pre-filter: a match makes a chunk a correction
// candidate, it does not prove the text is corrupt.
type corruptionRule struct {
	name string
	re   *regexp.Regexp
}

var corruptionRules = []corruptionRule{
	// Hamza written as a bare letter glued to the next word, or doubled.
	{"stray-hamza", regexp.MustCompile(`ء{2,}|ء[ء-ي]`)},
	// Alef maksura in the middle of a word (valid only word-finally).
	{"medial-alef-maksura", regexp.MustCompile(`ى[ء-ي]`)},
	// Taa marbuta in the middle of a word (also word-final only).
	{"medial-taa-marbuta", regexp.MustCompile(`ة[ء-ي]`)},
	// Whitespace squeezed before closing punctuation.
	{"space-before-punct", regexp.MustCompile(`\s+[،؛؟!.,;]`)},
	// Latin digits spliced into an Arabic word.
	{"digit-in-word", regexp.MustCompile(`[ء-ي][0-9]+[ء-ي]`)},
	// Runs of tatweel, an OCR artifact of stretched glyphs.
	{"tatweel-run", regexp.MustCompile(`ـ{3,}`)},
	// Isolated single Arabic letters scattered by broken segmentation.
	{"scattered-letters", regexp.MustCompile(`(^|\s)[ء-ي](\s[ء-ي]){3,}(\s|$)`)},
}

// IsSuspect reports whether text matches any corruption pattern.
func IsSuspect(text string) bool {
	for _, rule := range corruptionRules {
		if rule.re.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchedRules returns the names of all patterns that fire on text,
// useful for sweep reporting.
func MatchedRules(text string) []string {
	var names []string
	for _, rule := range corruptionRules {
		if rule.re.MatchString(text) {
			names = append(names, rule.name)
		}
	}
	return names
}
