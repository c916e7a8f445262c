package workingmemory_test

import (
	"testing"
	"time"

	"github.com/aimate/memorycore/internal/workingmemory"
)

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	b := workingmemory.New(2, 120, func() time.Time { return clock })

	b.Append(workingmemory.ConversationTurn{Role: "user", Content: "one"})
	b.Append(workingmemory.ConversationTurn{Role: "assistant", Content: "two"})
	b.Append(workingmemory.ConversationTurn{Role: "user", Content: "three"})

	recent := b.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns after eviction, got %d", len(recent))
	}
	if recent[0].Content != "two" || recent[1].Content != "three" {
		t.Fatalf("unexpected eviction order: %+v", recent)
	}
}

func TestSessionBoundaryResetsOnTimeout(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	now := func() time.Time { return clock }
	b := workingmemory.New(20, 120, now)

	b.Append(workingmemory.ConversationTurn{Role: "user", Content: "first"})
	firstSession := b.Session().SessionID

	clock = clock.Add(121 * time.Minute)
	b.Append(workingmemory.ConversationTurn{Role: "user", Content: "after gap"})

	if b.Session().SessionID == firstSession {
		t.Fatal("expected a new session after exceeding the timeout")
	}
	if len(b.Recent(10)) != 1 {
		t.Fatalf("expected ring cleared on session boundary, got %d turns", len(b.Recent(10)))
	}
}

func TestEstimateTokensNonZero(t *testing.T) {
	b := workingmemory.New(20, 120, nil)
	if got := b.EstimateTokens("hello world, this is a memory core test"); got <= 0 {
		t.Fatalf("expected positive token estimate, got %d", got)
	}
}
