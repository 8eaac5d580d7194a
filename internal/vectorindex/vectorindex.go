// Package vectorindex implements C3, the per-embedding-model persistent
// vector store (spec.md §3 "Vector index", §4.3). Two ANN backends sit
// behind one Index interface: chromem-go (the teacher's own choice,
// internal/mcp/chromem_searcher.go) and coder/hnsw (the pack's literal
// HNSW implementation, Aman-CERP-amanmcp/internal/store/hnsw.go).
// Persistence (the id<->chunk-id map, vectors and schema version) is
// handled by this package directly via temp+rename JSON, since neither
// backend's own persistence format matches the spec's single-file,
// schema-versioned contract.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/philippgille/chromem-go"
)

// SchemaVersion guards the on-disk envelope format (spec.md §3, §4.3).
const SchemaVersion = 1

// Backend selects the ANN structure used inside an Index.
type Backend string

const (
	BackendChromem Backend = "chromem"
	BackendHNSW    Backend = "hnsw"
)

// ScoredID is one ranked result from Search.
type ScoredID struct {
	ChunkID string
	Score   float32
}

// Index is a per-model persistent vector store keyed by chunk-id.
type Index interface {
	// Add inserts or replaces the vector for chunkID. Dimension must match
	// the index's declared D.
	Add(chunkID string, vector []float32) error
	// Remove deletes chunkID's vector, if present.
	Remove(chunkID string)
	// Search returns up to k nearest neighbours of query, best first.
	Search(query []float32, k int) ([]ScoredID, error)
	// PurgeMissing removes any indexed chunk-id not present in live, per
	// spec.md §4.3's stale-purge invariant, and returns how many were dropped.
	PurgeMissing(live map[string]bool) int
	// Len reports how many vectors are currently indexed.
	Len() int
	// Dimension returns the declared vector dimension D.
	Dimension() int
	// Save persists the index atomically (temp file + rename).
	Save(path string) error
}

// envelope is the on-disk, schema-versioned, backend-agnostic form.
// Both backends serialize to/from this shape so a profile can switch
// backend without losing history (spec.md §6.2 "indexes/<model_id>/index.json").
type envelope struct {
	SchemaVersion int                  `json:"schema_version"`
	Backend       Backend              `json:"backend"`
	Dimension     int                  `json:"dimension"`
	NextID        uint64               `json:"next_id"`
	IDMap         map[string]uint64    `json:"id_map"`   // chunk-id -> internal id
	Vectors       map[uint64][]float32 `json:"vectors"`  // internal id -> vector
}

// Load reads a persisted index from path, or returns a fresh empty index
// of the given backend/dimension if the file is absent or its schema
// version doesn't match (treated as "missing", spec.md §4.6).
func Load(path string, backend Backend, dimension int) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newEmpty(backend, dimension)
		}
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return newEmpty(backend, dimension)
	}
	if env.SchemaVersion != SchemaVersion || env.Dimension != dimension {
		return newEmpty(backend, dimension)
	}
	if backend != "" {
		env.Backend = backend
	}
	return fromEnvelope(env)
}

func newEmpty(backend Backend, dimension int) (Index, error) {
	switch backend {
	case BackendHNSW:
		return newHNSWIndex(dimension), nil
	case BackendChromem, "":
		return newChromemIndex(dimension), nil
	default:
		return nil, fmt.Errorf("vectorindex: unknown backend %q", backend)
	}
}

func fromEnvelope(env envelope) (Index, error) {
	idx, err := newEmpty(env.Backend, env.Dimension)
	if err != nil {
		return nil, err
	}
	rebuild(idx, env)
	return idx, nil
}

func rebuild(idx Index, env envelope) {
	// Re-insert in internal-id order so ids stay stable across reloads.
	type entry struct {
		chunkID string
		id      uint64
	}
	entries := make([]entry, 0, len(env.IDMap))
	for cid, id := range env.IDMap {
		entries = append(entries, entry{cid, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		if vec, ok := env.Vectors[e.id]; ok {
			_ = idx.Add(e.chunkID, vec)
		}
	}
}

// saveEnvelope writes env atomically to path.
func saveEnvelope(path string, env envelope) error {
	env.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// --- chromem backend ---

type chromemIndex struct {
	mu         sync.RWMutex
	dim        int
	db         *chromem.DB
	collection *chromem.Collection
	idMap      map[string]uint64    // chunk-id -> internal id (for envelope stability)
	vectors    map[uint64][]float32 // internal id -> vector, mirrored for Save
	nextID     uint64
}

func newChromemIndex(dim int) *chromemIndex {
	db := chromem.NewDB()
	// nil embedding func: vectors are always supplied directly via AddDocument.
	coll, _ := db.CreateCollection("vectorindex", nil, nil)
	return &chromemIndex{
		dim:        dim,
		db:         db,
		collection: coll,
		idMap:      make(map[string]uint64),
		vectors:    make(map[uint64][]float32),
	}
}

func (c *chromemIndex) Add(chunkID string, vector []float32) error {
	if len(vector) != c.dim {
		return fmt.Errorf("vectorindex: dimension mismatch: got %d want %d", len(vector), c.dim)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.idMap[chunkID]
	if !ok {
		id = c.nextID
		c.nextID++
		c.idMap[chunkID] = id
	}
	c.vectors[id] = vector
	return c.collection.AddDocument(context.Background(), chromem.Document{ID: chunkID, Embedding: vector})
}

func (c *chromemIndex) Remove(chunkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.collection.Delete(context.Background(), nil, nil, chunkID)
	if id, ok := c.idMap[chunkID]; ok {
		delete(c.vectors, id)
		delete(c.idMap, chunkID)
	}
}

func (c *chromemIndex) Search(query []float32, k int) ([]ScoredID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := c.collection.QueryEmbedding(context.Background(), query, k, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredID, 0, len(results))
	for _, r := range results {
		out = append(out, ScoredID{ChunkID: r.ID, Score: r.Similarity})
	}
	return out, nil
}

func (c *chromemIndex) PurgeMissing(live map[string]bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for cid, id := range c.idMap {
		if !live[cid] {
			_ = c.collection.Delete(context.Background(), nil, nil, cid)
			delete(c.vectors, id)
			delete(c.idMap, cid)
			dropped++
		}
	}
	return dropped
}

func (c *chromemIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count()
}

func (c *chromemIndex) Dimension() int { return c.dim }

func (c *chromemIndex) Save(path string) error {
	c.mu.RLock()
	env := envelope{
		Backend:   BackendChromem,
		Dimension: c.dim,
		NextID:    c.nextID,
		IDMap:     make(map[string]uint64, len(c.idMap)),
		Vectors:   make(map[uint64][]float32, len(c.vectors)),
	}
	for cid, id := range c.idMap {
		env.IDMap[cid] = id
	}
	for id, vec := range c.vectors {
		env.Vectors[id] = vec
	}
	c.mu.RUnlock()
	return saveEnvelope(path, env)
}

// --- hnsw backend ---

type hnswIndex struct {
	mu      sync.RWMutex
	dim     int
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[uint64][]float32 // mirrored for Save; coder/hnsw exposes no node lookup
	nextID  uint64
}

func newHNSWIndex(dim int) *hnswIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	return &hnswIndex{
		dim:     dim,
		graph:   g,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[uint64][]float32),
	}
}

func (h *hnswIndex) Add(chunkID string, vector []float32) error {
	if len(vector) != h.dim {
		return fmt.Errorf("vectorindex: dimension mismatch: got %d want %d", len(vector), h.dim)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.idMap[chunkID]; ok {
		// Lazy deletion: coder/hnsw misbehaves deleting the last node, so
		// orphan the old key instead of removing it from the graph.
		delete(h.keyMap, old)
		delete(h.vectors, old)
	}
	id := h.nextID
	h.nextID++
	h.graph.Add(hnsw.MakeNode(id, vector))
	h.idMap[chunkID] = id
	h.keyMap[id] = chunkID
	h.vectors[id] = vector
	return nil
}

func (h *hnswIndex) Remove(chunkID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.idMap[chunkID]; ok {
		delete(h.keyMap, id)
		delete(h.vectors, id)
		delete(h.idMap, chunkID)
	}
}

func (h *hnswIndex) Search(query []float32, k int) ([]ScoredID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(query) != h.dim {
		return nil, fmt.Errorf("vectorindex: dimension mismatch: got %d want %d", len(query), h.dim)
	}
	if h.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}
	nodes := h.graph.Search(query, k)
	out := make([]ScoredID, 0, len(nodes))
	for _, n := range nodes {
		cid, ok := h.keyMap[n.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		dist := h.graph.Distance(query, n.Value)
		out = append(out, ScoredID{ChunkID: cid, Score: 1 - dist})
	}
	return out, nil
}

func (h *hnswIndex) PurgeMissing(live map[string]bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for cid, id := range h.idMap {
		if !live[cid] {
			delete(h.keyMap, id)
			delete(h.vectors, id)
			delete(h.idMap, cid)
			dropped++
		}
	}
	return dropped
}

func (h *hnswIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

func (h *hnswIndex) Dimension() int { return h.dim }

func (h *hnswIndex) Save(path string) error {
	h.mu.RLock()
	env := envelope{
		Backend:   BackendHNSW,
		Dimension: h.dim,
		NextID:    h.nextID,
		IDMap:     make(map[string]uint64, len(h.idMap)),
		Vectors:   make(map[uint64][]float32, len(h.vectors)),
	}
	for cid, id := range h.idMap {
		env.IDMap[cid] = id
	}
	for id, vec := range h.vectors {
		env.Vectors[id] = vec
	}
	h.mu.RUnlock()
	return saveEnvelope(path, env)
}
