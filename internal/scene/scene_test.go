package scene_test

import (
	"testing"

	"github.com/aimate/memorycore/internal/scene"
)

func TestClassifySimpleTakesPriority(t *testing.T) {
	c := scene.NewClassifier(nil)
	got := c.Classify(scene.Request{Source: "PASSIVE_TRIGGER", EventType: "chat_reply"})
	if got.Type != scene.Simple || got.DefaultTier != 1 || got.MemoryPolicy != scene.MemoryNone {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyMediumEvents(t *testing.T) {
	c := scene.NewClassifier(nil)
	got := c.Classify(scene.Request{Source: "SYSTEM_EVENT", EventType: "hourly_chime"})
	if got.Type != scene.Medium || got.DefaultTier != 2 || got.MemoryPolicy != scene.MemoryFactsSummary {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyDefaultsToComplex(t *testing.T) {
	c := scene.NewClassifier(nil)
	got := c.Classify(scene.Request{Source: "CHAT_INPUT", EventType: "user_message"})
	if got.Type != scene.Complex || got.DefaultTier != 3 || got.MemoryPolicy != scene.MemoryFull {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestTableOverridesDefaultTierOnly(t *testing.T) {
	table := &scene.Table{Overrides: map[string]scene.Override{
		"game_result": {SceneID: "game_result", DefaultTier: 3},
	}}
	c := scene.NewClassifier(table)
	got := c.Classify(scene.Request{EventType: "game_result"})
	if got.Type != scene.Medium {
		t.Fatalf("override must not change scene type, got %+v", got)
	}
	if got.DefaultTier != 3 {
		t.Fatalf("expected overridden tier 3, got %d", got.DefaultTier)
	}
}
