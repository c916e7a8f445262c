package nlp

import "time"

// DeixisRule maps a canonicalized keyword to a window relative to "now".
// An Until of 0 means the window ends at now.
type DeixisRule struct {
	Keyword string
	Since   time.Duration // how far back the window starts
	Until   time.Duration // how far back the window ends (0 = now)
}

// DefaultDeixisRules is the keyword->window mapping named in the spec
// ("just now, today, yesterday, recently, last time, long ago, …").
// Configurable: callers may supply their own list to ScanTimeWindow.
var DefaultDeixisRules = []DeixisRule{
	{Keyword: "just now", Since: 5 * time.Minute},
	{Keyword: "刚才", Since: 5 * time.Minute},
	{Keyword: "recently", Since: 24 * time.Hour},
	{Keyword: "最近", Since: 24 * time.Hour},
	{Keyword: "today", Since: 24 * time.Hour},
	{Keyword: "今天", Since: 24 * time.Hour},
	{Keyword: "yesterday", Since: 48 * time.Hour, Until: 24 * time.Hour},
	{Keyword: "昨天", Since: 48 * time.Hour, Until: 24 * time.Hour},
	{Keyword: "last time", Since: 7 * 24 * time.Hour},
	{Keyword: "上次", Since: 7 * 24 * time.Hour},
	{Keyword: "long ago", Since: 365 * 24 * time.Hour},
	{Keyword: "很久以前", Since: 365 * 24 * time.Hour},
}

// Window is a [start, end] unix-millis bound, or the zero value for "no
// filter" — matches store.TimeWindow's shape without importing it (nlp
// stays a leaf package).
type Window struct {
	Start, End int64
}

// ScanTimeWindow canonicalizes query with CanonicalizeForMatch, takes the
// first rule (in list order) whose canonicalized keyword occurs in it as a
// substring, and returns its resolved window anchored at now. No match
// yields the zero
// Window, meaning HybridRetriever applies no time filter.
func ScanTimeWindow(query string, rules []DeixisRule, now time.Time) Window {
	canon := CanonicalizeForMatch(query)
	for _, r := range rules {
		if containsKeyword(canon, CanonicalizeForMatch(r.Keyword)) {
			until := now
			if r.Until > 0 {
				until = now.Add(-r.Until)
			}
			return Window{
				Start: now.Add(-r.Since).UnixMilli(),
				End:   until.UnixMilli(),
			}
		}
	}
	return Window{}
}

func containsKeyword(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
