package lifecycle_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/lifecycle"
	"github.com/aimate/memorycore/internal/store"
)

type fakeStore struct {
	memories      map[string]*store.Memory
	recent        []*store.Memory
	conflictFlags map[string]bool
	inserted      []*store.Memory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:      make(map[string]*store.Memory),
		conflictFlags: make(map[string]bool),
	}
}

func (f *fakeStore) Insert(m *store.Memory) (string, error) {
	f.memories[m.ID] = m
	f.inserted = append(f.inserted, m)
	return m.ID, nil
}
func (f *fakeStore) Get(id string) (*store.Memory, error) { return f.memories[id], nil }
func (f *fakeStore) Touch(id string) error                { return nil }
func (f *fakeStore) DecayTick(rate float64) error          { return nil }
func (f *fakeStore) Archive(id string) error               { return nil }
func (f *fakeStore) Restore(id string) error               { return nil }
func (f *fakeStore) MarkVectorized(id string) error        { return nil }
func (f *fakeStore) SetConflictFlag(id string, flag bool) error {
	f.conflictFlags[id] = flag
	return nil
}
func (f *fakeStore) FTSSearch(query string, limit int, window store.TimeWindow) ([]store.FTSHit, error) {
	return nil, nil
}
func (f *fakeStore) ActiveMemories() ([]*store.Memory, error) {
	out := make([]*store.Memory, 0, len(f.memories))
	for _, m := range f.memories {
		out = append(out, m)
	}
	return out, nil
}
func (f *fakeStore) RecentMemories(since int64, limit int) ([]*store.Memory, error) {
	return f.recent, nil
}
func (f *fakeStore) SchemaVersion() (int, error) { return 1, nil }
func (f *fakeStore) Close() error                { return nil }

var _ = Describe("ScoreImportance", func() {
	var cfg config.LifecycleConfig

	BeforeEach(func() {
		cfg = config.Default().Lifecycle
	})

	It("scores milestones at 0.95", func() {
		score := lifecycle.ScoreImportance(lifecycle.ImportanceInput{Milestone: true}, cfg)
		Expect(score).To(Equal(0.95))
	})

	It("scores large affinity changes at 0.8", func() {
		score := lifecycle.ScoreImportance(lifecycle.ImportanceInput{AffinityChange: -7}, cfg)
		Expect(score).To(Equal(0.8))
	})

	It("boosts on configured keywords without exceeding 0.95", func() {
		score := lifecycle.ScoreImportance(lifecycle.ImportanceInput{Content: "don't forget my birthday next week"}, cfg)
		Expect(score).To(BeNumerically(">=", 0.6))
		Expect(score).To(BeNumerically("<=", 0.95))
	})

	It("falls back to the configured default", func() {
		score := lifecycle.ScoreImportance(lifecycle.ImportanceInput{Content: "the weather is mild"}, cfg)
		Expect(score).To(Equal(cfg.DefaultImportance))
	})
})

var _ = Describe("ArchivalCandidates", func() {
	It("archives only memories meeting all four conditions", func() {
		cfg := config.Default().Lifecycle
		now := time.UnixMilli(1_700_000_000_000)
		old := now.Add(-60 * 24 * time.Hour)

		stale := &store.Memory{ID: "stale", Importance: 0.1, DecayFactor: 0.5, AccessCount: 0, CreatedAt: old.UnixMilli()}
		pinned := &store.Memory{ID: "pinned", Importance: 0.05, DecayFactor: 1, AccessCount: 0, CreatedAt: old.UnixMilli(), UserPinned: true}
		fresh := &store.Memory{ID: "fresh", Importance: 0.1, DecayFactor: 1, AccessCount: 0, CreatedAt: now.UnixMilli()}
		accessed := &store.Memory{ID: "accessed", Importance: 0.1, DecayFactor: 1, AccessCount: 10, CreatedAt: old.UnixMilli()}
		important := &store.Memory{ID: "important", Importance: 0.9, DecayFactor: 1, AccessCount: 0, CreatedAt: old.UnixMilli()}

		ids := lifecycle.ArchivalCandidates([]*store.Memory{stale, pinned, fresh, accessed, important}, now, cfg)
		Expect(ids).To(ContainElement("stale"))
		Expect(ids).NotTo(ContainElement("pinned"))
		Expect(ids).NotTo(ContainElement("fresh"))
		Expect(ids).NotTo(ContainElement("accessed"))
		Expect(ids).NotTo(ContainElement("important"))
	})
})

var _ = Describe("Manager.OnWrite conflict detection", func() {
	It("flags both records and creates a Reflection on opposing stance", func() {
		cfg := config.Default().Lifecycle
		cfg.AntonymPairs = [][2]string{{"like", "dislike"}}

		st := newFakeStore()
		oldMemory := &store.Memory{ID: "old1", Content: "Maya likes pizza"}
		st.memories[oldMemory.ID] = oldMemory
		st.recent = []*store.Memory{oldMemory}

		mgr, err := lifecycle.NewManager(st, cfg, nil)
		Expect(err).NotTo(HaveOccurred())

		newMemory := &store.Memory{ID: "new1", Content: "Maya dislikes pizza"}
		Expect(mgr.OnWrite(newMemory)).To(Succeed())

		Expect(st.conflictFlags["old1"]).To(BeTrue())
		Expect(st.conflictFlags["new1"]).To(BeTrue())
		Expect(st.inserted).To(HaveLen(1))
		Expect(st.inserted[0].Kind).To(Equal(store.KindReflection))
		Expect(st.inserted[0].Importance).To(Equal(0.8))
	})

	It("does not flag unrelated memories", func() {
		cfg := config.Default().Lifecycle
		cfg.AntonymPairs = [][2]string{{"like", "dislike"}}

		st := newFakeStore()
		unrelated := &store.Memory{ID: "u1", Content: "the sky is blue"}
		st.memories[unrelated.ID] = unrelated
		st.recent = []*store.Memory{unrelated}

		mgr, err := lifecycle.NewManager(st, cfg, nil)
		Expect(err).NotTo(HaveOccurred())

		newMemory := &store.Memory{ID: "new2", Content: "Maya likes pizza"}
		Expect(mgr.OnWrite(newMemory)).To(Succeed())
		Expect(st.conflictFlags).To(BeEmpty())
		Expect(st.inserted).To(BeEmpty())
	})
})
