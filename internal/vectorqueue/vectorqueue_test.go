package vectorqueue

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedder struct {
	fail bool
	dim  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embed failed")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeIndex struct{ added map[string][]float32 }

func (f *fakeIndex) Add(id string, v []float32) error {
	f.added[id] = v
	return nil
}

type fakeMarker struct{ marked map[string]bool }

func (f *fakeMarker) MarkVectorized(id string) error {
	f.marked[id] = true
	return nil
}

func TestEnqueueRoutesByPriority(t *testing.T) {
	q := New(Config{HighPriorityThreshold: 0.7}, nil)
	q.Enqueue(PendingVectorize{MemoryID: "a", Importance: 0.9})
	q.Enqueue(PendingVectorize{MemoryID: "b", Importance: 0.2})

	if len(q.high) != 1 || q.high[0].MemoryID != "a" {
		t.Fatalf("expected high lane to hold 'a', got %+v", q.high)
	}
	if len(q.normal) != 1 || q.normal[0].MemoryID != "b" {
		t.Fatalf("expected normal lane to hold 'b', got %+v", q.normal)
	}
}

func TestProcessOnceDrainsHighBeforeNormal(t *testing.T) {
	q := New(Config{BatchSize: 1, HighPriorityThreshold: 0.7}, nil)
	q.Enqueue(PendingVectorize{MemoryID: "low", Importance: 0.1})
	q.Enqueue(PendingVectorize{MemoryID: "high", Importance: 0.9})

	idx := &fakeIndex{added: map[string][]float32{}}
	marker := &fakeMarker{marked: map[string]bool{}}
	n, err := q.ProcessOnce(context.Background(), &fakeEmbedder{dim: 4}, idx, marker)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}
	if !marker.marked["high"] {
		t.Fatalf("expected high-priority item processed first, got %+v", marker.marked)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	q := New(Config{BatchSize: 10, MaxRetries: 2}, nil)
	q.Enqueue(PendingVectorize{MemoryID: "a", Importance: 0.1})

	idx := &fakeIndex{added: map[string][]float32{}}
	marker := &fakeMarker{marked: map[string]bool{}}

	for i := 0; i < 2; i++ {
		q.ProcessOnce(context.Background(), &fakeEmbedder{fail: true}, idx, marker)
	}

	h := q.HealthCheck()
	if h.DeadLetterCount != 1 {
		t.Fatalf("expected item to reach dead-letter after max retries, got health=%+v", h)
	}
	if h.PendingCount != 0 {
		t.Fatalf("expected no pending items left, got %d", h.PendingCount)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	q := New(Config{}, nil)
	q.Enqueue(PendingVectorize{MemoryID: "a", Importance: 0.9})
	q.Enqueue(PendingVectorize{MemoryID: "b", Importance: 0.1})

	dir := t.TempDir()
	path := dir + "/pending_vectorization.json"
	if err := q.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	q2 := New(Config{}, nil)
	if err := q2.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(q2.high) != 1 || q2.high[0].MemoryID != "a" {
		t.Fatalf("expected high lane restored, got %+v", q2.high)
	}
	if len(q2.normal) != 1 || q2.normal[0].MemoryID != "b" {
		t.Fatalf("expected normal lane restored, got %+v", q2.normal)
	}
}
