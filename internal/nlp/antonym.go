package nlp

import "github.com/coregx/ahocorasick"

// AntonymPair is one attitude-conflict pair from lifecycle config
// (e.g. "like"/"dislike"): when a new memory's canonicalized content
// contains one side and a candidate memory contains the other side for
// the same entity, LifecycleManager flags a conflict instead of
// merging or deleting either memory.
type AntonymPair struct {
	A, B string
}

// AntonymScanner matches canonicalized text against both sides of a
// configured antonym-pair list in one Aho-Corasick pass built by
// BuildAutomaton; it is the only scanner in this package that uses the
// automaton (time-deixis and entity extraction do not). The teacher's own
// narrative-conflict detector (pkg/scanner/narrative/narrative.go) does
// this matching over a vellum FST that is absent from the retrieval
// pack, so this rebuilds the same verb-matching shape on top of
// ahocorasick instead of attempting a literal FST port.
type AntonymScanner struct {
	pairs     []AntonymPair
	automaton *ahocorasick.Automaton
	sideOf    map[string]int // index into pairs, sign encoded via side maps below
	isA       map[string]bool
}

// NewAntonymScanner compiles pairs into a scanner. Returns an error only
// if the underlying automaton fails to build. When no pair has two
// non-empty sides, no automaton is built and the scanner matches nothing.
func NewAntonymScanner(pairs []AntonymPair) (*AntonymScanner, error) {
	patterns := make([]string, 0, len(pairs)*2)
	sideOf := make(map[string]int, len(pairs)*2)
	isA := make(map[string]bool, len(pairs)*2)

	for i, p := range pairs {
		a := CanonicalizeForMatch(p.A)
		b := CanonicalizeForMatch(p.B)
		if a == "" || b == "" {
			continue
		}
		patterns = append(patterns, a, b)
		sideOf[a] = i
		sideOf[b] = i
		isA[a] = true
		isA[b] = false
	}
	if len(patterns) == 0 {
		return &AntonymScanner{pairs: pairs, sideOf: sideOf, isA: isA}, nil
	}
	automaton, err := BuildAutomaton(patterns)
	if err != nil {
		return nil, err
	}
	return &AntonymScanner{pairs: pairs, automaton: automaton, sideOf: sideOf, isA: isA}, nil
}

// Match is one antonym-pair hit: which pair index matched and which
// side (A or B) was found in the text.
type Match struct {
	PairIndex int
	IsA       bool
	Keyword   string
}

// Scan returns every antonym keyword found in text, canonicalized the
// same way the index's automaton was built.
func (s *AntonymScanner) Scan(text string) []Match {
	if s.automaton == nil {
		return nil
	}
	canon := CanonicalizeForMatch(text)
	haystack := []byte(canon)
	var out []Match
	for _, m := range s.automaton.FindAllOverlapping(haystack) {
		if m.Start < 0 || m.End > len(canon) || m.Start >= m.End {
			continue
		}
		kw := canon[m.Start:m.End]
		idx, ok := s.sideOf[kw]
		if !ok {
			continue
		}
		out = append(out, Match{PairIndex: idx, IsA: s.isA[kw], Keyword: kw})
	}
	return out
}

// Conflicts reports whether text and other reference opposite sides of
// any configured antonym pair.
func (s *AntonymScanner) Conflicts(text, other string) bool {
	a := s.Scan(text)
	b := s.Scan(other)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, ma := range a {
		for _, mb := range b {
			if ma.PairIndex == mb.PairIndex && ma.IsA != mb.IsA {
				return true
			}
		}
	}
	return false
}
