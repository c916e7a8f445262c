package tier

import (
	"context"
	"testing"
	"time"

	"github.com/aimate/memorycore/internal/llm"
)

type fakeLLM struct {
	resp llm.Response
	err  error
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (llm.Response, error) {
	return f.resp, f.err
}

func TestLLMTierParsesEmotionTag(t *testing.T) {
	fl := &fakeLLM{resp: llm.Response{Text: "Glad you're here! [EMOTION:happy:0.9]"}}
	lt := NewLLMTier(fl, ValidEmotionTags, 0, 0.7, 0)
	resp, err := lt.Respond(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.EmotionTag != "happy" || resp.EmotionIntensity != 0.9 {
		t.Fatalf("unexpected emotion: %+v", resp)
	}
	if resp.Text != "Glad you're here!" {
		t.Fatalf("marker not stripped: %q", resp.Text)
	}
}

func TestLLMTierFallsBackToHeuristicOnInvalidTag(t *testing.T) {
	fl := &fakeLLM{resp: llm.Response{Text: "Wow, that's great! [EMOTION:ecstatic:2.0]"}}
	lt := NewLLMTier(fl, ValidEmotionTags, 0, 0.7, 0)
	resp, err := lt.Respond(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.EmotionTag != "neutral" {
		t.Fatalf("expected heuristic neutral tag, got %q", resp.EmotionTag)
	}
	if resp.EmotionIntensity <= 0.5 {
		t.Fatalf("expected intensity boosted by '!', got %v", resp.EmotionIntensity)
	}
}

func TestLLMTierPropagatesCallError(t *testing.T) {
	lt := NewLLMTier(&fakeLLM{err: context.DeadlineExceeded}, ValidEmotionTags, 0, 0.7, 0)
	if _, err := lt.Respond(context.Background(), "prompt"); err == nil {
		t.Fatal("expected an error")
	}
}
