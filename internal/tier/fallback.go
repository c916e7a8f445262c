package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimate/memorycore/internal/errs"
)

// Source says what actually answered a Respond call, for trace spans
// and cache-write decisions (only a genuine tier-3 success is cached).
type Source string

const (
	SourceLLM       Source = "llm"
	SourceCache     Source = "cache"
	SourceLocalLLM  Source = "local_llm"
	SourceRule      Source = "rule"
	SourceTemplate  Source = "template"
	SourceEmergency Source = "emergency"
)

// Outcome is the fallback chain's result, naming which step answered.
// LLMErr is tier 3's own failure (nil if tier 3 succeeded or was never
// attempted), kept around so callers can name a span after its kind
// (e.g. "LLM.timeout"). Err is set only when every step failed, or when
// tier 3 failed with a non-retryable kind that skips the chain
// entirely; ProcessInteraction surfaces it as success=false.
type Outcome struct {
	Response GeneratedResponse
	Source   Source
	LLMErr   error
	Err      error
}

// Chain links Tier 3 to its fallback steps (Fallback 1-5): Response
// Cache, an optional local LLM plugin, Tier 2, Tier 1, and a final
// per-scene emergency text. Each step after Tier 3 is independently
// toggleable by leaving its field nil/empty.
type Chain struct {
	LLM                *LLMTier
	Cache              *ResponseCache
	CacheMinSimilarity float64
	LocalLLM           *LLMTier
	Rule               *RuleTier
	Template           *TemplateTier
	EmergencyText      map[string]string // scene_id -> emergency text
}

// Respond runs Tier 3 and, on failure, walks the fallback chain
// left-to-right until a step produces a response. Per the LLM client
// contract, only TIMEOUT/RATE_LIMIT/SERVER_ERROR are retried through
// the chain; AUTH_ERROR/INVALID_PARAMS (and any other non-retryable
// kind) drop straight to the last-resort emergency text instead of
// walking cache/rule/template, since none of those steps can fix a
// misconfigured credential or a malformed request.
func (c *Chain) Respond(ctx context.Context, sceneID, prompt string, ruleCtx RuleContext) Outcome {
	var llmErr error

	if c.LLM != nil {
		resp, err := c.LLM.Respond(ctx, prompt)
		if err == nil {
			if c.Cache != nil {
				c.Cache.Put(sceneID, ruleCtx.Payload, resp, ruleCtx.Now)
			}
			return Outcome{Response: resp, Source: SourceLLM}
		}
		llmErr = err
		if !retryableViaChain(err) {
			return c.emergencyOutcome(sceneID, llmErr, err)
		}
	}

	if c.Cache != nil {
		minSim := c.CacheMinSimilarity
		if minSim == 0 {
			minSim = 0.8
		}
		if resp, ok := c.Cache.Lookup(sceneID, ruleCtx.Payload, minSim, ruleCtx.Now); ok {
			return Outcome{Response: resp, Source: SourceCache, LLMErr: llmErr}
		}
	}

	if c.LocalLLM != nil {
		if resp, err := c.LocalLLM.Respond(ctx, prompt); err == nil {
			return Outcome{Response: resp, Source: SourceLocalLLM, LLMErr: llmErr}
		}
	}

	if c.Rule != nil {
		if resp, ok := c.Rule.Respond(ruleCtx); ok {
			return Outcome{Response: resp, Source: SourceRule, LLMErr: llmErr}
		}
	}

	if c.Template != nil {
		if resp, ok := c.Template.Respond(sceneID, ruleCtx.Payload); ok {
			return Outcome{Response: resp, Source: SourceTemplate, LLMErr: llmErr}
		}
	}

	return c.emergencyOutcome(sceneID, llmErr, fmt.Errorf("tier: fallback chain exhausted for scene %q", sceneID))
}

// retryableViaChain reports whether a Tier 3 failure is allowed to fall
// through to the rest of the chain. A non-LLMError generation failure
// is treated conservatively as retryable.
func retryableViaChain(err error) bool {
	var llmErr *errs.LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable()
	}
	return true
}

func (c *Chain) emergencyOutcome(sceneID string, llmErr, failure error) Outcome {
	text := c.EmergencyText[sceneID]
	if text == "" {
		text = c.EmergencyText["default"]
	}
	if text == "" {
		text = "I'm here, just having trouble finding the right words."
	}
	return Outcome{
		Response: GeneratedResponse{Text: text, EmotionTag: "neutral", EmotionIntensity: 0.5},
		Source:   SourceEmergency,
		LLMErr:   llmErr,
		Err:      failure,
	}
}
