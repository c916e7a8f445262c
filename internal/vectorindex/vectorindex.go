// Package vectorindex is the dense-vector similarity index (C2): an opaque
// store keyed by Memory.id, backed by sqlite-vec's vec0 virtual table —
// the teacher's own direct dependency, never previously wired into any of
// its code paths. Persistence follows the teacher's atomic-write idiom
// (temp file + rename) generalized from in-memory Export/Import bytes to
// an on-disk vec0 database plus a JSON id<->rowid map file.
package vectorindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// Hit is one search result: a memory id and a similarity in [0,1], higher
// is more similar.
type Hit struct {
	ID         string
	Similarity float64
}

// DimensionError is returned when a vector's length doesn't match the
// index's fixed dimension D.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// Index is the VectorIndex implementation. Single-writer: callers must not
// mutate it from more than one goroutine concurrently (the vectorize
// worker is the index's sole writer, matching the "one writer per
// resource" rule).
type Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	dim       int
	idToRowid map[string]int64
	rowidToID map[int64]string
	nextRowid int64
}

// New opens an in-memory vec0 table of the given fixed dimension.
func New(dim int) (*Index, error) {
	return open(":memory:", dim)
}

// Load opens the vec0 database at path (creating it if missing) together
// with its sibling idmap file. A corrupted or missing idmap yields an
// empty index rather than an error, per the Load contract.
func Load(path string, dim int) (*Index, error) {
	idx, err := open(path, dim)
	if err != nil {
		return nil, err
	}
	idmapPath := idmapPathFor(path)
	data, err := os.ReadFile(idmapPath)
	if err != nil {
		// Missing idmap is normal on first run; a present-but-corrupt one
		// also degrades to an empty index rather than failing Load.
		return idx, nil
	}
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return idx, nil
	}
	idx.idToRowid = m
	for id, rowid := range m {
		idx.rowidToID[rowid] = id
		if rowid >= idx.nextRowid {
			idx.nextRowid = rowid + 1
		}
	}
	return idx, nil
}

func idmapPathFor(vecPath string) string {
	return vecPath + ".idmap.json"
}

func open(path string, dim int) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open %s: %w", path, err)
	}
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(embedding float[%d])`, dim)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: create vec0 table: %w", err)
	}
	return &Index{
		db:        db,
		dim:       dim,
		idToRowid: make(map[string]int64),
		rowidToID: make(map[int64]string),
	}, nil
}

func encodeVector(v []float32) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// Add inserts or overwrites the vector for id. Idempotent on duplicate id.
func (idx *Index) Add(id string, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(vector) != idx.dim {
		return &DimensionError{Got: len(vector), Want: idx.dim}
	}
	payload, err := encodeVector(vector)
	if err != nil {
		return fmt.Errorf("vectorindex: encode vector: %w", err)
	}

	if rowid, exists := idx.idToRowid[id]; exists {
		_, err := idx.db.Exec(`UPDATE vec_items SET embedding = ? WHERE rowid = ?`, payload, rowid)
		if err != nil {
			return fmt.Errorf("vectorindex: update: %w", err)
		}
		return nil
	}

	rowid := idx.nextRowid
	idx.nextRowid++
	if _, err := idx.db.Exec(`INSERT INTO vec_items(rowid, embedding) VALUES (?, ?)`, rowid, payload); err != nil {
		return fmt.Errorf("vectorindex: insert: %w", err)
	}
	idx.idToRowid[id] = rowid
	idx.rowidToID[rowid] = id
	return nil
}

// Remove deletes the vector for id, if present.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rowid, exists := idx.idToRowid[id]
	if !exists {
		return nil
	}
	if _, err := idx.db.Exec(`DELETE FROM vec_items WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("vectorindex: delete: %w", err)
	}
	delete(idx.idToRowid, id)
	delete(idx.rowidToID, rowid)
	return nil
}

// Search returns the top-k most similar vectors to query, empty (never an
// error) if the index holds nothing.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.dim {
		return nil, &DimensionError{Got: len(query), Want: idx.dim}
	}
	if len(idx.idToRowid) == 0 {
		return nil, nil
	}

	payload, err := encodeVector(query)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: encode query: %w", err)
	}

	rows, err := idx.db.Query(`
		SELECT rowid, distance
		FROM vec_items
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, payload, k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var rowid int64
		var distance float64
		if err := rows.Scan(&rowid, &distance); err != nil {
			return nil, err
		}
		id, ok := idx.rowidToID[rowid]
		if !ok {
			continue
		}
		// vec0's default metric is L2; fold into a bounded similarity so
		// HybridRetriever's rerank can treat it uniformly with FTS scores.
		sim := 1.0 / (1.0 + distance)
		hits = append(hits, Hit{ID: id, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits, nil
}

// Len reports how many vectors are currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToRowid)
}

// Save persists the index to path: the vec0 database via VACUUM INTO a temp
// file then rename, and the id<->rowid map as JSON via the same pattern —
// both atomic.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vectorindex: mkdir: %w", err)
	}

	tmpDB := path + ".tmp"
	os.Remove(tmpDB)
	if _, err := idx.db.Exec(`VACUUM INTO ?`, tmpDB); err != nil {
		return fmt.Errorf("vectorindex: vacuum into: %w", err)
	}
	if err := os.Rename(tmpDB, path); err != nil {
		return fmt.Errorf("vectorindex: rename vec file: %w", err)
	}

	data, err := json.Marshal(idx.idToRowid)
	if err != nil {
		return fmt.Errorf("vectorindex: marshal idmap: %w", err)
	}
	idmapPath := idmapPathFor(path)
	tmpMap := idmapPath + ".tmp"
	if err := os.WriteFile(tmpMap, data, 0o644); err != nil {
		return fmt.Errorf("vectorindex: write idmap: %w", err)
	}
	return os.Rename(tmpMap, idmapPath)
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.db.Close()
}
