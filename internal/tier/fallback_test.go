package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aimate/memorycore/internal/errs"
	"github.com/aimate/memorycore/internal/llm"
)

type erroringLLM struct{}

func (erroringLLM) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (llm.Response, error) {
	return llm.Response{}, errors.New("boom")
}

type kindErroringLLM struct {
	kind errs.LLMErrorKind
}

func (k kindErroringLLM) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (llm.Response, error) {
	return llm.Response{}, &errs.LLMError{Kind: k.kind, Err: errors.New("sdk failure")}
}

func TestChainFallsThroughToTemplateOnLLMFailure(t *testing.T) {
	chain := &Chain{
		LLM:      NewLLMTier(erroringLLM{}, ValidEmotionTags, 0, 0.7, time.Second),
		Template: NewTemplateTier(TemplateTable{"chime": {{Text: "hi", EmotionTag: "neutral"}}}),
	}
	out := chain.Respond(context.Background(), "chime", "prompt", RuleContext{SceneID: "chime", Now: time.Now()})
	if out.Source != SourceTemplate {
		t.Fatalf("expected template fallback, got %v", out.Source)
	}
}

func TestChainFallsThroughToEmergencyWhenNothingElseAnswers(t *testing.T) {
	chain := &Chain{
		LLM:           NewLLMTier(erroringLLM{}, ValidEmotionTags, 0, 0.7, time.Second),
		EmergencyText: map[string]string{"chime": "emergency text"},
	}
	out := chain.Respond(context.Background(), "chime", "prompt", RuleContext{SceneID: "chime", Now: time.Now()})
	if out.Source != SourceEmergency {
		t.Fatalf("expected emergency fallback, got %v", out.Source)
	}
	if out.Response.Text != "emergency text" {
		t.Fatalf("unexpected emergency text: %q", out.Response.Text)
	}
}

func TestChainCachesSuccessfulLLMResponseForReuse(t *testing.T) {
	cache, err := NewResponseCache(7)
	if err != nil {
		t.Fatalf("NewResponseCache: %v", err)
	}
	ok := &fakeLLM{resp: llm.Response{Text: "nice day [EMOTION:happy:0.6]"}}
	chain := &Chain{LLM: NewLLMTier(ok, ValidEmotionTags, 0, 0.7, time.Second), Cache: cache}

	now := time.Now()
	payload := map[string]any{"weather": "sunny"}
	first := chain.Respond(context.Background(), "weather_update", "prompt", RuleContext{SceneID: "weather_update", Payload: payload, Now: now})
	if first.Source != SourceLLM {
		t.Fatalf("expected llm source, got %v", first.Source)
	}

	time.Sleep(10 * time.Millisecond)
	failing := &Chain{LLM: NewLLMTier(erroringLLM{}, ValidEmotionTags, 0, 0.7, time.Second), Cache: cache}
	second := failing.Respond(context.Background(), "weather_update", "prompt", RuleContext{SceneID: "weather_update", Payload: payload, Now: now})
	if second.Source != SourceCache {
		t.Fatalf("expected cache hit on matching fingerprint, got %v", second.Source)
	}
}

func TestChainRetryableErrorFallsThroughToTemplate(t *testing.T) {
	chain := &Chain{
		LLM:      NewLLMTier(kindErroringLLM{kind: errs.LLMTimeout}, ValidEmotionTags, 0, 0.7, time.Second),
		Template: NewTemplateTier(TemplateTable{"chime": {{Text: "hi", EmotionTag: "neutral"}}}),
	}
	out := chain.Respond(context.Background(), "chime", "prompt", RuleContext{SceneID: "chime", Now: time.Now()})
	if out.Source != SourceTemplate {
		t.Fatalf("expected a TIMEOUT to still retry through the chain, got %v", out.Source)
	}
}

func TestChainAuthErrorSkipsFallbackChainToEmergency(t *testing.T) {
	chain := &Chain{
		LLM:           NewLLMTier(kindErroringLLM{kind: errs.LLMAuthError}, ValidEmotionTags, 0, 0.7, time.Second),
		Rule:          NewRuleTier(map[string]RuleFunc{"chime": func(ctx RuleContext) GeneratedResponse { return GeneratedResponse{Text: "rule answer"} }}),
		Template:      NewTemplateTier(TemplateTable{"chime": {{Text: "template answer", EmotionTag: "neutral"}}}),
		EmergencyText: map[string]string{"chime": "emergency text"},
	}
	out := chain.Respond(context.Background(), "chime", "prompt", RuleContext{SceneID: "chime", Now: time.Now()})
	if out.Source != SourceEmergency {
		t.Fatalf("expected AUTH_ERROR to skip straight to emergency text, got %v (%q)", out.Source, out.Response.Text)
	}
	if out.Err == nil {
		t.Fatal("expected a non-nil Err signalling total failure")
	}
	if out.LLMErr == nil {
		t.Fatal("expected LLMErr to carry the original tier-3 failure for span naming")
	}
}
