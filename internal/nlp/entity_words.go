package nlp

import "strings"

// ExtractEntityWords returns the entity words HybridRetriever's strategy
// selection inspects: nouns, proper nouns, and verbal nouns of length ≥ 2.
// Latin-script text goes through the POS tagger; text containing any Han
// rune (the teacher's tagger has no CJK lexicon) instead yields every
// bigram and trigram of each run of U+4E00–U+9FFF runes, deduplicated and
// not stopword-filtered.
func ExtractEntityWords(text string) []string {
	if HasCJK(text) {
		return extractCJKEntityWords(text)
	}
	return extractLatinEntityWords(text)
}

func extractLatinEntityWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	tagger := NewTagger()
	tags := tagger.Tag(words)

	var out []string
	for i, w := range words {
		clean := CanonicalizeForMatch(w)
		if len(clean) < 2 {
			continue
		}
		switch tags[i] {
		case Noun, ProperNoun:
			out = append(out, clean)
		case Verb:
			// "verbal nouns" per spec: gerund/participle forms only.
			if strings.HasSuffix(clean, "ing") || strings.HasSuffix(clean, "tion") {
				out = append(out, clean)
			}
		}
	}
	return out
}

func extractCJKEntityWords(text string) []string {
	var runs [][]rune
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}
	for _, r := range text {
		if isCJKRune(r) {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()

	seen := make(map[string]bool)
	var out []string
	for _, run := range runs {
		for _, gram := range cjkNGrams(run) {
			if !seen[gram] {
				seen[gram] = true
				out = append(out, gram)
			}
		}
	}
	return out
}

func isCJKRune(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
