package tier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ResponseCache is Fallback 1: a fingerprinted, TTL'd cache of prior
// Tier 3 outputs keyed by scene + a cosine-similarity-matched payload
// fingerprint. Ristretto gives us the TTL and cost-aware eviction the
// spec's "entries TTL 7 days" requirement needs without hand-rolling an
// LRU.
type ResponseCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	// byScene holds the raw fingerprint vectors alongside the stored
	// response so Lookup can do a cosine-similarity scan across a
	// scene's recent entries; ristretto itself is a pure key/value
	// store with no range queries.
	bySceneMu sync.Mutex
	byScene   map[string][]cachedEntry
}

type cachedEntry struct {
	key         string
	fingerprint []float64
	response    GeneratedResponse
	expiresAt   time.Time
}

// NewResponseCache builds a cache with the given TTL (days).
func NewResponseCache(ttlDays int) (*ResponseCache, error) {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("tier: build response cache: %w", err)
	}
	return &ResponseCache{
		cache:   c,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		byScene: make(map[string][]cachedEntry),
	}, nil
}

// Fingerprint turns a sanitized payload into a vector holding, for each
// key in sorted order, the length of fmt.Sprint of its value; used purely
// for cosine similarity
// matching between cache entries of the same scene (not a general
// embedding).
func Fingerprint(payload map[string]any) []float64 {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vec := make([]float64, 0, len(keys))
	for _, k := range keys {
		vec = append(vec, float64(len(fmt.Sprint(payload[k]))))
	}
	return vec
}

// Put stores a response for sceneID + its payload fingerprint.
func (c *ResponseCache) Put(sceneID string, payload map[string]any, resp GeneratedResponse, now time.Time) {
	fp := Fingerprint(payload)
	key := cacheKey(sceneID, fp)

	c.cache.SetWithTTL(key, resp, 1, c.ttl)
	c.cache.Wait()

	c.bySceneMu.Lock()
	defer c.bySceneMu.Unlock()
	c.byScene[sceneID] = append(c.byScene[sceneID], cachedEntry{
		key:         key,
		fingerprint: fp,
		response:    resp,
		expiresAt:   now.Add(c.ttl),
	})
}

// Lookup returns the cached response for the scene whose fingerprint is
// cosine-similar to payload's at or above minSimilarity (Chain.Respond
// passes 0.8 when unset). Side-index entries past their expiresAt are
// skipped but not removed, and a candidate also has to still be present
// in ristretto.
func (c *ResponseCache) Lookup(sceneID string, payload map[string]any, minSimilarity float64, now time.Time) (GeneratedResponse, bool) {
	fp := Fingerprint(payload)

	c.bySceneMu.Lock()
	entries := c.byScene[sceneID]
	c.bySceneMu.Unlock()

	var best cachedEntry
	bestSim := -1.0
	for _, e := range entries {
		if now.After(e.expiresAt) {
			continue
		}
		sim := cosineSimilarity(fp, e.fingerprint)
		if sim > bestSim {
			bestSim = sim
			best = e
		}
	}
	if bestSim < minSimilarity {
		return GeneratedResponse{}, false
	}

	if v, found := c.cache.Get(best.key); found {
		if resp, ok := v.(GeneratedResponse); ok {
			return resp, true
		}
	}
	return GeneratedResponse{}, false
}

func cacheKey(sceneID string, fingerprint []float64) string {
	var sb strings.Builder
	sb.WriteString(sceneID)
	for _, f := range fingerprint {
		fmt.Fprintf(&sb, "|%.2f", f)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		magA += v * v
	}
	for _, v := range b {
		magB += v * v
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
