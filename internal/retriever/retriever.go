// Package retriever implements HybridRetriever (C4): time-window
// inference, FTS/vector strategy selection, candidate merge, metadata
// rerank, threshold gating and top-k limiting.
package retriever

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/nlp"
	"github.com/aimate/memorycore/internal/pool"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/vectorindex"
)

// Strategy is the retrieval path HybridRetriever picked for a query.
type Strategy string

const (
	FTSPrimary    Strategy = "fts_primary"
	VectorPrimary Strategy = "vector_primary"
	Parallel      Strategy = "parallel"
)

// Embedder produces a single query embedding. A narrower contract than
// vectorqueue.Embedder (which batches); HybridRetriever embeds one query
// string per call.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the subset of vectorindex.Index the retriever needs.
type VectorSearcher interface {
	Search(query []float32, k int) ([]vectorindex.Hit, error)
	Len() int
}

// Candidate is one reranked result with its score breakdown, exposed for
// debugging and tests.
type Candidate struct {
	Memory     *store.Memory
	Similarity float64
	Recency    float64
	Importance float64
	Frequency  float64
	Final      float64
}

// Result is HybridRetriever's output for one query.
type Result struct {
	Strategy         Strategy
	Window           nlp.Window
	Candidates       []Candidate
	NoRelevantMemory bool
}

// Retrieve runs the full C4 pipeline. now is injected for determinism in
// tests (recency/age computations must never read the wall clock
// directly).
func Retrieve(ctx context.Context, query string, cfg config.RetrieverConfig, deixisRules []nlp.DeixisRule,
	st store.Storer, vec VectorSearcher, emb Embedder, now time.Time, forceParallel bool) (Result, error) {

	window := nlp.ScanTimeWindow(query, deixisRules, now)
	tw := store.TimeWindow{Start: window.Start, End: window.End}

	strategy := selectStrategy(cfg, query, forceParallel)

	scores := pool.GetCandidateMap()
	defer pool.PutCandidateMap(scores)

	if strategy == FTSPrimary || strategy == Parallel {
		hits, err := st.FTSSearch(query, cfg.FTSTopK, tw)
		if err != nil {
			return Result{}, err
		}
		for _, h := range hits {
			mergeMax(scores, h.ID, h.Score)
		}
	}

	if strategy == VectorPrimary || strategy == Parallel {
		if vec != nil && vec.Len() > 0 {
			qv, err := emb.EmbedQuery(ctx, query)
			if err != nil {
				return Result{}, err
			}
			vhits, err := vec.Search(qv, cfg.VectorTopK)
			if err != nil {
				return Result{}, err
			}
			for _, h := range vhits {
				mergeMax(scores, h.ID, h.Similarity)
			}
			minResults := cfg.MinVectorResults
			if minResults <= 0 {
				minResults = 3
			}
			if len(vhits) < minResults {
				hits, err := st.FTSSearch(query, cfg.FTSTopK, tw)
				if err != nil {
					return Result{}, err
				}
				for _, h := range hits {
					mergeMax(scores, h.ID, h.Score)
				}
			}
		}
	}

	ids := pool.GetStringSlice()
	defer pool.PutStringSlice(ids)
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	candidates := make([]Candidate, 0, len(ids))
	maxAccess := 0
	memos := make(map[string]*store.Memory, len(ids))
	for _, id := range ids {
		m, err := st.Get(id)
		if err != nil || m == nil || m.Archived {
			continue
		}
		memos[id] = m
		if m.AccessCount > maxAccess {
			maxAccess = m.AccessCount
		}
	}

	for _, id := range ids {
		m, ok := memos[id]
		if !ok {
			continue
		}
		candidates = append(candidates, rerank(m, scores[id], cfg, now, maxAccess))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if a.Memory.CreatedAt != b.Memory.CreatedAt {
			return a.Memory.CreatedAt > b.Memory.CreatedAt
		}
		return a.Memory.ID < b.Memory.ID
	})

	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.65
	}
	gated := candidates[:0:0]
	for _, c := range candidates {
		if c.Final >= threshold {
			gated = append(gated, c)
		}
	}

	topK := cfg.FinalTopK
	if topK <= 0 {
		topK = 5
	}
	if len(gated) > topK {
		gated = gated[:topK]
	}

	return Result{
		Strategy:         strategy,
		Window:           window,
		Candidates:       gated,
		NoRelevantMemory: len(gated) == 0,
	}, nil
}

func selectStrategy(cfg config.RetrieverConfig, query string, forceParallel bool) Strategy {
	if forceParallel {
		return Parallel
	}
	if !cfg.SmartSelection {
		switch cfg.FallbackStrategy {
		case string(FTSPrimary):
			return FTSPrimary
		case string(VectorPrimary):
			return VectorPrimary
		default:
			return Parallel
		}
	}
	entities := nlp.ExtractEntityWords(query)
	if len(entities) > 0 {
		return FTSPrimary
	}
	return VectorPrimary
}

func mergeMax(scores map[string]float64, id string, score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if cur, ok := scores[id]; !ok || score > cur {
		scores[id] = score
	}
}

func rerank(m *store.Memory, similarity float64, cfg config.RetrieverConfig, now time.Time, maxAccess int) Candidate {
	wSim, wRec, wImp, wFre := cfg.SimilarityWeight, cfg.RecencyWeight, cfg.ImportanceWeight, cfg.FrequencyWeight
	if wSim == 0 && wRec == 0 && wImp == 0 && wFre == 0 {
		wSim, wRec, wImp, wFre = 0.4, 0.3, 0.2, 0.1
	}
	decayDays := cfg.RecencyDecayDays
	if decayDays <= 0 {
		decayDays = 30
	}

	ageDays := now.Sub(time.UnixMilli(m.CreatedAt)).Hours() / 24
	recency := clamp01(math.Exp(-ageDays / decayDays))

	importance := clamp01(m.Importance * m.DecayFactor)

	frequency := 0.0
	if maxAccess > 0 {
		frequency = clamp01(math.Log(1+float64(m.AccessCount)) / math.Log(1+float64(maxAccess)))
	}

	sim := clamp01(similarity)

	final := wSim*sim + wRec*recency + wImp*importance + wFre*frequency

	return Candidate{
		Memory:     m,
		Similarity: sim,
		Recency:    recency,
		Importance: importance,
		Frequency:  frequency,
		Final:      clamp01(final),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
