// Package tier implements TierHandlers (C9): three coordinated response
// producers (template, rule, LLM) and the fallback chain that links
// them to a Response Cache and an optional local LLM plugin.
package tier

import "regexp"

// GeneratedResponse is the uniform output of every tier and of the
// fallback chain itself.
type GeneratedResponse struct {
	Text             string
	EmotionTag       string
	EmotionIntensity float64
	AnimationHint    string // empty if unset
}

// ValidEmotionTags is consulted by Tier 3's parser; callers normally
// pass config.TierConfig.ValidEmotionTags instead of this default.
var ValidEmotionTags = []string{
	"happy", "excited", "sad", "angry", "shy", "surprised", "tired", "anxious", "neutral",
}

// emotionTagPattern matches the trailing LLM marker `[EMOTION:tag:intensity]`.
var emotionTagPattern = regexp.MustCompile(`\[EMOTION:(\w+):([\d.]+)\]`)

func validTag(tag string, allowed []string) bool {
	for _, t := range allowed {
		if t == tag {
			return true
		}
	}
	return false
}
