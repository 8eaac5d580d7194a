// Package indexpipeline implements C6, the Indexer write pipeline that
// orchestrates C1 (chunk), C4 (corpus), C2/C3 (embed/vectorindex) and
// C5 (symbolgraph) under the C7 exclusive project lock (spec.md §4.6).
//
// This is a fresh orchestrator, not an adaptation of the teacher's
// internal/indexer (a SQLite-backed, natural-language "extraction"
// pipeline serving a different storage model — see DESIGN.md) or
// internal/indexer/indexer_v2.go (the teacher's own in-house v2
// refactor, same storage model). Its shape — enumerate, diff,
// re-chunk changed files, embed, rebuild the graph, write the
// watermark last — follows spec.md §4.6 step by step; the change-
// detection mechanics (a content-hash compare; mtimes are only recorded
// in the watermark) reuse the approach in the
// teacher's internal/indexer/change_detector.go.
package indexpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gobwas/glob"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/project"
	"github.com/cortexlens/contextd/internal/symbolgraph"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

// DefaultIgnorePatterns mirrors the teacher's config.PathsConfig.Ignore
// defaults (internal/config/config.go Default()).
var DefaultIgnorePatterns = []string{
	"node_modules/**", "vendor/**", ".git/**", "dist/**", "build/**",
	"target/**", "__pycache__/**", "*.test", "*.pyc", ".context/**", ".context-finder/**",
}

// Stats summarizes one indexing pass.
type Stats struct {
	FilesScanned  int
	FilesAdded    int
	FilesChanged  int
	FilesRemoved  int
	ChunksTotal   int
	TimeMS        int64
}

// Pipeline owns the per-project engine handle: corpus, one vector index
// per model, and the symbol graph (spec.md §5 "per-project singleton").
type Pipeline struct {
	Root     *project.Root
	Registry *embed.Registry
	Backend  vectorindex.Backend
	Ignore   []string
	Options  chunk.Options

	Corpus  *corpus.Corpus
	Indexes map[string]vectorindex.Index // model id -> index
	Graph   *symbolgraph.Graph
}

// Open loads the persisted corpus and per-model vector indexes for
// root and builds the symbol graph from the loaded corpus's chunks
// (empty when nothing has been indexed yet). opts comes from
// the project's config.yml/profile chunking section; pass
// chunk.DefaultOptions() to use the built-in defaults.
func Open(root *project.Root, registry *embed.Registry, backend vectorindex.Backend, opts chunk.Options) (*Pipeline, error) {
	c, err := corpus.Load(root.CorpusPath())
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		Root:     root,
		Registry: registry,
		Backend:  backend,
		Ignore:   DefaultIgnorePatterns,
		Options:  opts,
		Corpus:   c,
		Indexes:  make(map[string]vectorindex.Index),
	}
	for _, id := range registry.IDs() {
		m, _ := registry.Get(id)
		idx, err := vectorindex.Load(filepath.Join(root.IndexDir(id), "index.json"), backend, m.Dimensions)
		if err != nil {
			return nil, err
		}
		p.Indexes[id] = idx
	}
	p.Graph = symbolgraph.Build(c.AllChunks())
	return p, nil
}

// IndexFull re-chunks and re-embeds every tracked file, ignoring the
// corpus's existing change-detection state (spec.md §4.6 "index_full()").
func (p *Pipeline) IndexFull(ctx context.Context) (Stats, error) {
	return p.index(ctx, true)
}

// Index performs an incremental pass: only changed/added files are
// re-chunked and re-embedded (spec.md §4.6 "index()").
func (p *Pipeline) Index(ctx context.Context) (Stats, error) {
	return p.index(ctx, false)
}

func (p *Pipeline) index(ctx context.Context, full bool) (Stats, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(p.Root.LockPath()), 0o755); err != nil {
		return Stats{}, err
	}
	lock := freshness.NewLock(p.Root.LockPath())
	if err := lock.Acquire(ctx); err != nil {
		return Stats{}, err
	}
	defer lock.Release()

	files, err := p.scan()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{FilesScanned: len(files)}
	liveSet := make(map[string]bool, len(files))
	for rel := range files {
		liveSet[rel] = true
	}

	// Per-file content hashes for diffing and for the watermark
	// (spec.md §4.6 step 1).
	hashes := make(map[string]string, len(files))
	for rel, abs := range files {
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			continue
		}
		hashes[rel] = hashBytes(data)
	}

	prior := make(map[string]freshness.TrackedFile)
	if !full {
		if wm, exists, _ := freshness.LoadWatermark(p.Root.WatermarkPath()); exists {
			for _, f := range wm.Files {
				prior[f.Path] = f
			}
		}
	}

	var toProcess []string
	if full {
		for rel := range files {
			toProcess = append(toProcess, rel)
		}
	} else {
		for rel := range files {
			// A file the corpus has never seen is added even when the
			// watermark remembers it (corpus deleted externally, §4.6).
			if p.Corpus.FileChunks(rel) == nil {
				stats.FilesAdded++
				toProcess = append(toProcess, rel)
				continue
			}
			tf, tracked := prior[rel]
			if !tracked || tf.Hash != hashes[rel] {
				stats.FilesChanged++
				toProcess = append(toProcess, rel)
			}
		}
	}
	sort.Strings(toProcess)

	removed := p.Corpus.PurgeMissingFiles(liveSet)
	stats.FilesRemoved = len(removed)

	chunker := chunk.New(p.Options)
	var newChunks []chunk.Chunk
	for _, rel := range toProcess {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		abs := files[rel]
		src, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		chunks, err := chunker.Chunk(src, rel)
		if err != nil {
			continue
		}
		p.Corpus.SetFileChunks(rel, chunks)
		newChunks = append(newChunks, chunks...)
	}

	if err := p.Corpus.Save(); err != nil {
		return stats, err
	}
	stats.ChunksTotal = len(p.Corpus.AllChunks())

	live := p.Corpus.AllChunkIDs()
	for _, id := range p.Registry.IDs() {
		if err := p.embedModel(ctx, id, newChunks, live); err != nil {
			return stats, err
		}
	}

	p.Graph = symbolgraph.Build(p.Corpus.AllChunks())

	wm := &freshness.Watermark{IndexedAtUnix: time.Now().Unix()}
	for rel, abs := range files {
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		wm.Files = append(wm.Files, freshness.TrackedFile{Path: rel, MTime: info.ModTime().Unix(), Hash: hashes[rel]})
	}
	sort.Slice(wm.Files, func(i, j int) bool { return wm.Files[i].Path < wm.Files[j].Path })
	if err := freshness.SaveWatermark(p.Root.WatermarkPath(), wm); err != nil {
		return stats, err
	}

	stats.TimeMS = time.Since(start).Milliseconds()
	return stats, nil
}

// embedModel computes embeddings for newChunks under model id, updates
// that model's vector index, purges stale entries, and persists it
// (spec.md §4.6 step 4).
func (p *Pipeline) embedModel(ctx context.Context, id string, newChunks []chunk.Chunk, live map[string]bool) error {
	m, ok := p.Registry.Get(id)
	if !ok {
		return nil
	}
	idx := p.Indexes[id]
	if idx == nil {
		var err error
		idx, err = vectorindex.Load(filepath.Join(p.Root.IndexDir(id), "index.json"), p.Backend, m.Dimensions)
		if err != nil {
			return err
		}
		p.Indexes[id] = idx
	}

	if len(newChunks) > 0 {
		texts := make([]string, len(newChunks))
		for i, c := range newChunks {
			texts[i] = c.Content
		}
		vectors, err := embed.EmbedBatches(ctx, m, texts, embed.EmbedModePassage, embed.DefaultBatchSize, nil)
		if err != nil {
			return err
		}
		for i, c := range newChunks {
			if err := idx.Add(c.ID, vectors[i]); err != nil {
				return err
			}
		}
	}

	idx.PurgeMissing(live)
	return idx.Save(filepath.Join(p.Root.IndexDir(id), "index.json"))
}

// scan enumerates tracked files under the project root, honoring ignore
// patterns, and returns rel-path -> absolute-path.
func (p *Pipeline) scan() (map[string]string, error) {
	globs := make([]glob.Glob, 0, len(p.Ignore))
	for _, pat := range p.Ignore {
		g, err := glob.Compile(pat, '/')
		if err == nil {
			globs = append(globs, g)
		}
	}

	out := make(map[string]string)
	maxBytes := int64(p.Options.MaxFileBytes)
	err := filepath.Walk(p.Root.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort scan; skip unreadable entries
		}
		rel, relErr := filepath.Rel(p.Root.Path, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		slashRel := filepath.ToSlash(rel)
		for _, g := range globs {
			if g.Match(slashRel) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() {
			return nil
		}
		if info.Size() > maxBytes {
			return nil
		}
		out[slashRel] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// FreshnessState reports staleness for this project root (spec.md §4.7).
func (p *Pipeline) FreshnessState() (freshness.State, error) {
	files, err := p.scan()
	if err != nil {
		return freshness.State{}, err
	}
	return freshness.Check(p.Root.WatermarkPath(), files)
}
