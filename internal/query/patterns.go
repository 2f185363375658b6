package query

import "regexp"

// patternRule pairs a compiled pattern with the signal it raises. The battery
// is data, not control flow, so it can be unit-tested and extended on its own.
type patternRule struct {
	name string
	re   *regexp.Regexp
}

// comparativeRules flag questions that span multiple documents. English and
// Arabic cues; illustrative rather than exhaustive.
var comparativeRules = []patternRule{
	{"common-en", regexp.MustCompile(`(?i)\b(in )?common\b`)},
	{"difference-en", regexp.MustCompile(`(?i)\bdiffer(ence|ences|s|ent)?\b`)},
	{"compare-en", regexp.MustCompile(`(?i)\bcompar(e|ison|ative|ing)\b`)},
	{"versus-en", regexp.MustCompile(`(?i)\b(versus|vs\.?)\b`)},
	{"similarities-en", regexp.MustCompile(`(?i)\bsimilar(ity|ities)?\b`)},
	{"between-and-en", regexp.MustCompile(`(?i)\bbetween\b.+\band\b`)},
	{"both-en", regexp.MustCompile(`(?i)\bboth\b.+\band\b`)},
	{"common-ar", regexp.MustCompile(`مشترك|المشتركة|القواسم`)},
	{"difference-ar", regexp.MustCompile(`الفرق|الاختلاف|يختلف|الفروق`)},
	{"compare-ar", regexp.MustCompile(`قارن|مقارنة|يقارن`)},
	{"similar-ar", regexp.MustCompile(`التشابه|تشابه|يتشابه`)},
	{"between-and-ar", regexp.MustCompile(`بين\s+\S+.*\s+و`)},
}

// IsComparative reports whether the query matches any comparative cue.
func IsComparative(queryText string) bool {
	for _, rule := range comparativeRules {
		if rule.re.MatchString(queryText) {
			return true
		}
	}
	return false
}

// followUpRules flag a question that continues the previous turn rather than
// opening a new topic.
var followUpRules = []patternRule{
	{"more-en", regexp.MustCompile(`(?i)^(and|also|what about|how about|tell me more|more about|why|elaborate|continue|go on)\b`)},
	{"pronoun-en", regexp.MustCompile(`(?i)^(what|who|when|where|how) (is|are|was|were) (it|he|she|they|that|this|those)\b`)},
	{"more-ar", regexp.MustCompile(`^(وماذا عن|ماذا عن|وما|أكمل|تابع|زدني|اشرح أكثر|لماذا)`)},
	{"pronoun-ar", regexp.MustCompile(`^(ما هو|ما هي|من هو|من هي)\s+(ذلك|هذا|هذه|تلك)`)},
}

// IsFollowUp reports whether the query looks like a continuation of the prior
// turn. Very short queries after a first turn usually are.
func IsFollowUp(queryText string, hasPriorTurn bool) bool {
	if !hasPriorTurn {
		return false
	}
	for _, rule := range followUpRules {
		if rule.re.MatchString(queryText) {
			return true
		}
	}
	return len([]rune(queryText)) < 15
}
