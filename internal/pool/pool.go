// Package pool provides object pooling for the candidate-scoring maps
// HybridRetriever builds and discards on every call.
package pool

import "sync"

// CandidateMapPool pools the map[string]float64 scratch space retriever
// strategies use to accumulate per-strategy scores before the union step.
var CandidateMapPool = sync.Pool{
	New: func() interface{} {
		return make(map[string]float64, 32)
	},
}

// GetCandidateMap returns a cleared map[string]float64 from the pool.
func GetCandidateMap() map[string]float64 {
	m := CandidateMapPool.Get().(map[string]float64)
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutCandidateMap returns m to the pool.
func PutCandidateMap(m map[string]float64) {
	CandidateMapPool.Put(m)
}

// StringSlicePool pools []string scratch slices (entity-word lists,
// id lists) built once per retrieval call.
var StringSlicePool = sync.Pool{
	New: func() interface{} {
		return make([]string, 0, 16)
	},
}

// GetStringSlice returns an empty []string from the pool.
func GetStringSlice() []string {
	s := StringSlicePool.Get().([]string)
	return s[:0]
}

// PutStringSlice returns s to the pool.
func PutStringSlice(s []string) {
	StringSlicePool.Put(s)
}
