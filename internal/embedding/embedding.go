// Package embedding is the narrow collaborator contract the spec names:
// embed(texts) -> [[float; D]], batched, fixed dimension, with the same
// failure taxonomy as llm.Client and a local-model fallback requirement
// of equal dimension.
package embedding

import "context"

// Client is the contract vectorqueue's worker and HybridRetriever's
// query-embedding step both call through.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
