package retriever_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/nlp"
	"github.com/aimate/memorycore/internal/retriever"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/vectorindex"
)

type fakeStore struct {
	memories map[string]*store.Memory
	ftsHits  []store.FTSHit
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: make(map[string]*store.Memory)}
}

func (f *fakeStore) put(m *store.Memory) { f.memories[m.ID] = m }

func (f *fakeStore) Insert(m *store.Memory) (string, error)     { f.put(m); return m.ID, nil }
func (f *fakeStore) Get(id string) (*store.Memory, error)       { return f.memories[id], nil }
func (f *fakeStore) Touch(id string) error                      { return nil }
func (f *fakeStore) DecayTick(rate float64) error                { return nil }
func (f *fakeStore) Archive(id string) error                    { return nil }
func (f *fakeStore) Restore(id string) error                    { return nil }
func (f *fakeStore) MarkVectorized(id string) error             { return nil }
func (f *fakeStore) SetConflictFlag(id string, flag bool) error { return nil }
func (f *fakeStore) FTSSearch(query string, limit int, window store.TimeWindow) ([]store.FTSHit, error) {
	return f.ftsHits, nil
}
func (f *fakeStore) ActiveMemories() ([]*store.Memory, error)                       { return nil, nil }
func (f *fakeStore) RecentMemories(since int64, limit int) ([]*store.Memory, error) { return nil, nil }
func (f *fakeStore) SchemaVersion() (int, error)                                    { return 1, nil }
func (f *fakeStore) Close() error                                                   { return nil }

type fakeVector struct {
	hits []vectorindex.Hit
	n    int
}

func (f *fakeVector) Search(query []float32, k int) ([]vectorindex.Hit, error) { return f.hits, nil }
func (f *fakeVector) Len() int                                                 { return f.n }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

var _ = Describe("HybridRetriever", func() {
	var cfg config.RetrieverConfig
	var now time.Time

	BeforeEach(func() {
		cfg = config.Default().Retriever
		now = time.UnixMilli(1_700_000_000_000)
	})

	It("selects FTS_PRIMARY when entity words are present", func() {
		st := newFakeStore()
		st.put(&store.Memory{ID: "m1", Content: "apple", CreatedAt: now.UnixMilli(), Importance: 0.9, DecayFactor: 1})
		st.ftsHits = []store.FTSHit{{ID: "m1", Score: 0.95}}

		res, err := retriever.Retrieve(context.Background(), "tell me about apple", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Strategy).To(Equal(retriever.FTSPrimary))
		Expect(res.Candidates).NotTo(BeEmpty())
	})

	It("falls back to vector when no entity words are present", func() {
		st := newFakeStore()
		res, err := retriever.Retrieve(context.Background(), "so it is", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{n: 0}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Strategy).To(Equal(retriever.VectorPrimary))
	})

	It("falls back to FTS when vector results are sparse", func() {
		st := newFakeStore()
		st.put(&store.Memory{ID: "m1", Content: "fallback candidate", CreatedAt: now.UnixMilli(), Importance: 0.9, DecayFactor: 1})
		st.ftsHits = []store.FTSHit{{ID: "m1", Score: 0.9}}

		res, err := retriever.Retrieve(context.Background(), "so it is", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{n: 5, hits: nil}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Candidates).NotTo(BeEmpty())
	})

	It("gates out candidates below the similarity threshold", func() {
		st := newFakeStore()
		st.put(&store.Memory{ID: "m1", Content: "apple seed", CreatedAt: 0, Importance: 0.05, DecayFactor: 0.1})
		st.ftsHits = []store.FTSHit{{ID: "m1", Score: 0.01}}

		res, err := retriever.Retrieve(context.Background(), "apple", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.NoRelevantMemory).To(BeTrue())
		Expect(res.Candidates).To(BeEmpty())
	})

	It("is deterministic across repeated calls with identical inputs", func() {
		st := newFakeStore()
		st.put(&store.Memory{ID: "a", Content: "apple", CreatedAt: now.UnixMilli(), Importance: 0.9, DecayFactor: 1})
		st.put(&store.Memory{ID: "b", Content: "apple too", CreatedAt: now.UnixMilli(), Importance: 0.9, DecayFactor: 1})
		st.ftsHits = []store.FTSHit{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.9}}

		first, err := retriever.Retrieve(context.Background(), "apple", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())
		second, err := retriever.Retrieve(context.Background(), "apple", cfg, nlp.DefaultDeixisRules,
			st, &fakeVector{}, fakeEmbedder{}, now, false)
		Expect(err).NotTo(HaveOccurred())

		Expect(first.Candidates).To(HaveLen(len(second.Candidates)))
		for i := range first.Candidates {
			Expect(first.Candidates[i].Memory.ID).To(Equal(second.Candidates[i].Memory.ID))
		}
	})
})
