package nlp

import (
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// isJoiner returns true for punctuation that commonly appears inside
// names/terms and is preserved during canonicalization (apostrophe,
// hyphen, period, …). Kept verbatim from the teacher's implicit-matcher.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// CanonicalizeForMatch lowercases, folds apostrophe/dash variants, keeps
// joiners so multiword terms stay coherent, and collapses every other
// separator run into a single space.
func CanonicalizeForMatch(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true

	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

var enStopwords = stopwords.MustGet("en")

// TokenizeNorm splits and canonicalizes, filtering English stopwords. For
// CJK content this yields runs of adjacent Han characters; the entity-word
// extractor checks HasCJK and sends such text to cjkNGrams instead.
func TokenizeNorm(text string) []string {
	words := strings.Fields(CanonicalizeForMatch(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" && !enStopwords.Contains(w) {
			out = append(out, w)
		}
	}
	return out
}

// HasCJK reports whether s contains any Han-script rune.
func HasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// cjkNGrams produces every bigram and trigram window over a run of CJK
// runes, with no stopword filtering — the teacher's tagger has no CJK
// lexicon, so rather than POS tag it, entity-word extraction for CJK text
// falls back to sliding n-grams.
func cjkNGrams(run []rune) []string {
	var out []string
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(run); i++ {
			out = append(out, string(run[i:i+n]))
		}
	}
	return out
}

// BuildAutomaton compiles patterns (already canonicalized by the caller)
// into an Aho-Corasick automaton for antonym scanning, the same builder
// call the teacher's implicit-matcher uses.
func BuildAutomaton(patterns []string) (*ahocorasick.Automaton, error) {
	return ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
}
