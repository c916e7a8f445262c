package promptasm_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/promptasm"
	"github.com/aimate/memorycore/internal/retriever"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/workingmemory"
)

func TestAssembleInjectsNoFabricateDirective(t *testing.T) {
	cfg := config.Default().Prompt
	now := time.UnixMilli(1_700_000_000_000)

	out, err := promptasm.Assemble(cfg, promptasm.Input{
		Mode:         "standard",
		Identity:     "You are a companion.",
		Instructions: "Respond warmly.",
		Retrieval:    retriever.Result{NoRelevantMemory: true},
		Now:          now,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(out, "do not invent") {
		t.Fatalf("expected no-fabricate directive in prompt, got: %s", out)
	}
}

func TestAssembleIncludesMemoryIndexAndFulltext(t *testing.T) {
	cfg := config.Default().Prompt
	now := time.UnixMilli(1_700_000_000_000)

	mem := &store.Memory{ID: "abc123", Content: "Maya's birthday is in March, she loves chocolate cake", Importance: 0.9, CreatedAt: now.Add(-2 * time.Hour).UnixMilli()}
	result := retriever.Result{
		Candidates: []retriever.Candidate{{Memory: mem, Final: 0.9}},
	}

	out, err := promptasm.Assemble(cfg, promptasm.Input{
		Mode:         "standard",
		Identity:     "You are a companion.",
		Instructions: "Respond warmly.",
		Retrieval:    result,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(out, "#abc123") {
		t.Fatalf("expected memory index entry for #abc123, got: %s", out)
	}
	if !strings.Contains(out, "⭐") {
		t.Fatalf("expected high-importance star marker, got: %s", out)
	}
	if !strings.Contains(out, "RECALL") {
		t.Fatalf("expected recall-token instruction, got: %s", out)
	}
}

func TestAssembleTruncatesWorkingMemoryOldestFirst(t *testing.T) {
	cfg := config.Default().Prompt
	cfg.Budgets["standard"] = config.PromptBudget{
		Identity: 100, Working: 5, Environment: 100, LongTermSummary: 100,
		MemoryIndex: 100, MemoryFulltext: 100, Instructions: 100, ReservedOutput: 100,
	}
	now := time.UnixMilli(1_700_000_000_000)

	turns := []workingmemory.ConversationTurn{
		{Role: "user", Content: "a very long first turn that should be dropped first because it is oldest"},
		{Role: "assistant", Content: "short reply"},
	}

	out, err := promptasm.Assemble(cfg, promptasm.Input{
		Mode:      "standard",
		Retrieval: retriever.Result{NoRelevantMemory: true},
		Working:   turns,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if strings.Contains(out, "very long first turn") {
		t.Fatalf("expected oldest turn to be truncated away, got: %s", out)
	}
}
