package tier_test

import (
	"testing"

	"github.com/aimate/memorycore/internal/tier"
)

func TestTemplateTierSubstitutesPayload(t *testing.T) {
	tt := tier.NewTemplateTier(tier.TemplateTable{
		"feed_response": {
			{Text: "Thanks for the {food}!", EmotionTag: "happy", EmotionIntensity: 0.6},
		},
	})
	resp, ok := tt.Respond("feed_response", map[string]any{"food": "apple"})
	if !ok {
		t.Fatal("expected a response")
	}
	if resp.Text != "Thanks for the apple!" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestTemplateTierMissingSceneReturnsFalse(t *testing.T) {
	tt := tier.NewTemplateTier(tier.TemplateTable{})
	if _, ok := tt.Respond("unknown", nil); ok {
		t.Fatal("expected no response for unknown scene")
	}
}

func TestTemplateTierAvoidsImmediateRepeat(t *testing.T) {
	tt := tier.NewTemplateTier(tier.TemplateTable{
		"chime": {
			{Text: "a"}, {Text: "b"}, {Text: "c"},
		},
	})
	var last string
	for i := 0; i < 20; i++ {
		resp, ok := tt.Respond("chime", nil)
		if !ok {
			t.Fatal("expected a response")
		}
		if i > 0 && resp.Text == last {
			t.Fatalf("picked the same variant twice in a row at iteration %d", i)
		}
		last = resp.Text
	}
}
