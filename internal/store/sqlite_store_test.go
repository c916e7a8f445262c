package store

import (
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	m := &Memory{
		ID:      "mem1",
		Content: "海棠喜欢苹果",
		Kind:    KindFact,
		Importance: 0.6,
		Tags:    []string{"food"},
		Metadata: map[string]any{
			"subject": "海棠", "predicate": "likes", "object": "苹果", "confidence": 0.9,
		},
	}
	if _, err := s.Insert(m); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get("mem1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory, got nil")
	}
	if got.Content != m.Content || got.Kind != m.Kind {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
	if got.Vectorized {
		t.Fatal("freshly inserted memory must not be vectorized")
	}
	if got.DecayFactor != 1.0 {
		t.Fatalf("expected decay_factor=1.0, got %v", got.DecayFactor)
	}
}

func TestTouchResetsDecay(t *testing.T) {
	s := newTestStore(t)
	s.Insert(&Memory{ID: "mem1", Content: "x", Kind: KindEpisode})
	if err := s.DecayTick(0.5); err != nil {
		t.Fatalf("decay_tick: %v", err)
	}
	m, _ := s.Get("mem1")
	if m.DecayFactor != 0.5 {
		t.Fatalf("expected decay 0.5 after tick, got %v", m.DecayFactor)
	}
	if err := s.Touch("mem1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	m, _ = s.Get("mem1")
	if m.DecayFactor != 1.0 {
		t.Fatalf("expected decay reset to 1.0 after touch, got %v", m.DecayFactor)
	}
	if m.AccessCount != 1 {
		t.Fatalf("expected access_count=1, got %d", m.AccessCount)
	}
}

func TestArchiveExcludesFromFTS(t *testing.T) {
	s := newTestStore(t)
	s.Insert(&Memory{ID: "mem1", Content: "hello world", Kind: KindEpisode})

	hits, err := s.FTSSearch("hello", 10, TimeWindow{})
	if err != nil {
		t.Fatalf("fts_search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit before archive, got %d", len(hits))
	}

	if err := s.Archive("mem1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	hits, err = s.FTSSearch("hello", 10, TimeWindow{})
	if err != nil {
		t.Fatalf("fts_search after archive: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits after archive, got %d", len(hits))
	}
}

func TestFTSSearchCJK(t *testing.T) {
	s := newTestStore(t)
	s.Insert(&Memory{ID: "mem1", Content: "你好，今天天气很好", Kind: KindEpisode})

	hits, err := s.FTSSearch("你好", 10, TimeWindow{})
	if err != nil {
		t.Fatalf("fts_search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 CJK hit, got %d", len(hits))
	}
}

func TestSchemaVersionSeeded(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("schema_version: %v", err)
	}
	if v != currentSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", currentSchemaVersion, v)
	}
}
