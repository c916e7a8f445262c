package tier

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aimate/memorycore/internal/llm"
)

// LLMTier is Tier 3: a full LLM call over an already-assembled prompt.
type LLMTier struct {
	client      llm.Client
	validTags   []string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewLLMTier builds a Tier 3 handler. validTags and timeout normally
// come straight from config.TierConfig.
func NewLLMTier(client llm.Client, validTags []string, maxTokens int, temperature float64, timeout time.Duration) *LLMTier {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &LLMTier{client: client, validTags: validTags, maxTokens: maxTokens, temperature: temperature, timeout: timeout}
}

// Respond calls the LLM with prompt and parses the trailing emotion
// marker. Only a failed LLM call (timeout, API error) is returned as an
// error so the fallback chain can proceed; a malformed/missing emotion
// tag is NOT an error,
// it falls back to heuristic tagging per spec.
func (t *LLMTier) Respond(ctx context.Context, prompt string) (GeneratedResponse, error) {
	resp, err := t.client.Call(ctx, prompt, t.maxTokens, t.temperature, t.timeout)
	if err != nil {
		return GeneratedResponse{}, err
	}

	text, tag, intensity, ok := extractEmotionTag(resp.Text, t.validTags)
	if !ok {
		tag, intensity = heuristicTag(text)
	}
	return GeneratedResponse{Text: strings.TrimSpace(text), EmotionTag: tag, EmotionIntensity: intensity}, nil
}

// extractEmotionTag strips a trailing `[EMOTION:tag:intensity]` marker
// from text and returns its parsed fields. ok is false if no marker is
// present, the tag isn't in validTags, or the intensity doesn't parse
// into [0,1].
func extractEmotionTag(text string, validTags []string) (stripped, tag string, intensity float64, ok bool) {
	loc := emotionTagPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, "", 0, false
	}
	matches := emotionTagPattern.FindStringSubmatch(text)
	tag = matches[1]
	val, err := strconv.ParseFloat(matches[2], 64)
	if err != nil || val < 0 || val > 1 {
		return text, "", 0, false
	}
	if len(validTags) > 0 && !validTag(tag, validTags) {
		return text, "", 0, false
	}
	stripped = text[:loc[0]] + text[loc[1]:]
	return stripped, tag, val, true
}

// heuristicTag implements the spec's fallback tagging when the LLM
// omits or malforms the emotion marker: "!" nudges intensity up,
// "…" nudges it down, an emoji nudges it up, default neutral/0.5.
func heuristicTag(text string) (string, float64) {
	intensity := 0.5
	if strings.Contains(text, "!") {
		intensity += 0.2
	}
	if strings.Contains(text, "...") || strings.Contains(text, "…") {
		intensity -= 0.2
	}
	if containsEmoji(text) {
		intensity += 0.1
	}
	if intensity > 1 {
		intensity = 1
	}
	if intensity < 0 {
		intensity = 0
	}
	return "neutral", intensity
}

// containsEmoji does a coarse check for codepoints in common emoji
// blocks; good enough for a fallback heuristic, not a full classifier.
func containsEmoji(text string) bool {
	for _, r := range text {
		if r >= 0x1F300 && r <= 0x1FAFF {
			return true
		}
		if r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}
