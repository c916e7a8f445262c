package nlp

import (
	"strings"
	"unicode"
)

// Tagger performs two-pass POS tagging: a dictionary+suffix-heuristic
// baseline pass, then a contextual-reinforcement pass that corrects
// ambiguous words using their neighbors. Adapted from the teacher's
// chunker.Tagger, with the suffix inference reworked as the table-driven
// suffixRules below; the POS type itself had to be rebuilt (in pos.go)
// since its defining file was not present in the retrieval pack (only
// tagger.go's call sites were), so its constant/method set is
// reconstructed from how this file uses it rather than copied.
type Tagger struct {
	lexicon map[string]POS
}

// NewTagger creates a Tagger with the default English lexicon.
func NewTagger() *Tagger {
	t := &Tagger{lexicon: make(map[string]POS)}
	t.loadDefaultLexicon()
	return t
}

// Tag processes a slice of words and returns their POS tags.
func (t *Tagger) Tag(words []string) []POS {
	tags := make([]POS, len(words))

	for i, word := range words {
		tags[i] = t.lookupBaseline(word)
	}

	for i := 0; i < len(tags); i++ {
		currentWord := words[i]
		currentTag := tags[i]

		var prevTag POS = Other
		if i > 0 {
			prevTag = tags[i-1]
		}

		if (prevTag == Determiner || prevTag.IsModifier()) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}
		if prevTag == Modal && currentTag.IsNominal() {
			tags[i] = Verb
			continue
		}
		if i > 0 && isTo(words[i-1]) && currentTag.IsNominal() {
			tags[i] = Verb
			continue
		}
		if i > 0 && isOf(words[i-1]) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}
		if len(currentWord) == 1 && unicode.IsPunct(rune(currentWord[0])) {
			tags[i] = Punctuation
		}
	}

	return tags
}

func (t *Tagger) lookupBaseline(word string) POS {
	lower := fastLower(word)
	if pos, ok := t.lexicon[lower]; ok {
		return pos
	}
	return t.inferPOS(word)
}

// suffixRule maps a word ending to its inferred part of speech; the first
// rule in list order whose suffix matches wins.
type suffixRule struct {
	suffix string
	pos    POS
}

var suffixRules = []suffixRule{
	{"ness", Noun},
	{"tion", Noun},
	{"ment", Noun},
	{"able", Adjective},
	{"ible", Adjective},
	{"ous", Adjective},
	{"ive", Adjective},
	{"ity", Noun},
	{"ful", Adjective},
	{"less", Adjective},
	{"ing", Verb},
	{"en", Verb},
	{"or", Noun},
	{"er", Noun},
	{"ed", Verb},
	{"ly", Adverb},
}

func (t *Tagger) inferPOS(word string) POS {
	if len(word) == 1 && unicode.IsPunct(rune(word[0])) {
		return Punctuation
	}
	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		return ProperNoun
	}

	lower := fastLower(word)
	for _, rule := range suffixRules {
		if strings.HasSuffix(lower, rule.suffix) {
			return rule.pos
		}
	}
	return Noun
}

func fastLower(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}

func isTo(s string) bool {
	return len(s) == 2 && (s[0] == 't' || s[0] == 'T') && (s[1] == 'o' || s[1] == 'O')
}

func isOf(s string) bool {
	return len(s) == 2 && (s[0] == 'o' || s[0] == 'O') && (s[1] == 'f' || s[1] == 'F')
}

func (t *Tagger) loadDefaultLexicon() {
	for _, w := range []string{"the", "a", "an", "this", "that", "these", "those", "my", "your",
		"his", "her", "its", "our", "their", "some", "any", "no", "every", "each", "all", "both",
		"few", "many", "much", "most", "other"} {
		t.lexicon[w] = Determiner
	}
	for _, w := range []string{"in", "on", "at", "to", "for", "with", "by", "from", "of", "about",
		"into", "through", "during", "before", "after", "above", "below", "between", "under", "over"} {
		t.lexicon[w] = Preposition
	}
	for _, w := range []string{"is", "are", "was", "were", "be", "been", "being", "am",
		"have", "has", "had", "having", "do", "does", "did", "doing"} {
		t.lexicon[w] = Auxiliary
	}
	for _, w := range []string{"can", "could", "will", "would", "shall", "should", "may", "might", "must"} {
		t.lexicon[w] = Modal
	}
	for _, w := range []string{"and", "or", "but", "nor", "yet", "so", "because", "although",
		"while", "if", "unless", "until", "since", "when", "where", "whether"} {
		t.lexicon[w] = Conjunction
	}
	for _, w := range []string{"i", "you", "he", "she", "it", "we", "they", "me", "him", "us", "them"} {
		t.lexicon[w] = Pronoun
	}
	for _, w := range []string{"who", "whom", "whose", "which", "that"} {
		t.lexicon[w] = RelativePronoun
	}
	for _, w := range []string{"very", "quite", "rather", "really", "too", "just", "only",
		"now", "then", "here", "there", "always", "never", "often", "sometimes"} {
		t.lexicon[w] = Adverb
	}
	for _, w := range []string{"like", "dislike", "love", "hate", "remember", "forget",
		"say", "said", "know", "knew", "take", "took", "get", "got", "make", "made",
		"go", "went", "come", "came", "see", "saw", "feel", "felt"} {
		t.lexicon[w] = Verb
	}
}
