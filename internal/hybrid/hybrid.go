// Package hybrid implements C8, combining semantic (C3) and
// lexical/fuzzy (bleve) recall via reciprocal-rank fusion (spec.md
// §4.8). The lexical side is grounded on the teacher's
// internal/mcp/exact_searcher.go bleve mapping/query pattern; the
// semantic side calls through C2's embed.Registry and C3's
// vectorindex.Index.
package hybrid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gobwas/glob"

	"github.com/cortexlens/contextd/internal/apperr"
	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

// QueryKind classifies the shape of a search query (spec.md §4.8 step 1).
type QueryKind string

const (
	KindIdentifier QueryKind = "identifier"
	KindPath       QueryKind = "path"
	KindConceptual QueryKind = "conceptual"
)

// candidateMultiplier over-fetches recall sets for fusion headroom
// (spec.md §4.8 step 3/4 "k_semantic ≈ L×C").
const candidateMultiplier = 4

// Classify determines a query's shape from whitespace, path separators
// and identifier casing (spec.md §4.8 step 1).
func Classify(query string) QueryKind {
	q := strings.TrimSpace(query)
	if strings.ContainsAny(q, "/\\") && !strings.Contains(q, " ") {
		return KindPath
	}
	words := strings.Fields(q)
	if len(words) == 1 {
		w := words[0]
		if isCamelOrSnake(w) {
			return KindIdentifier
		}
	}
	if len(words) <= 2 {
		return KindIdentifier
	}
	return KindConceptual
}

func isCamelOrSnake(w string) bool {
	if strings.Contains(w, "_") {
		return true
	}
	hasUpper, hasLower := false, false
	for _, r := range w {
		if r >= 'A' && r <= 'Z' {
			hasUpper = true
		}
		if r >= 'a' && r <= 'z' {
			hasLower = true
		}
	}
	return hasUpper && hasLower
}

// Result is one ranked hit, shaped for C9/C10 consumption.
type Result struct {
	ChunkID   string
	Chunk     chunk.Chunk
	Score     float64
	Semantic  bool
	Lexical   bool
}

// Filters narrows results by path and content kind (spec.md §4.8 inputs).
type Filters struct {
	IncludePaths []string
	ExcludePaths []string
	FilePattern  string
	PreferCode   bool
	IncludeDocs  *bool // nil = default true
}

// Options controls one Search call.
type Options struct {
	Limit       int
	Filters     Filters
	ModelID     string // empty = registry primary
	AllowSemantic bool // false forces lexical-only regardless of index state
}

// Meta reports degradation and model selection for response provenance.
type Meta struct {
	QueryKind        QueryKind
	SemanticUsed     bool
	SemanticModel    string
	DegradationReason string // set when semantic was skipped
}

// Searcher runs hybrid search over one project's corpus.
type Searcher struct {
	corpus    *corpus.Corpus
	registry  *embed.Registry
	indexes   map[string]vectorindex.Index
	lexical   bleve.Index
}

// New builds a Searcher, indexing the corpus's current chunks into an
// in-memory bleve index for the lexical recall path (spec.md §4.8 step 4).
func New(c *corpus.Corpus, registry *embed.Registry, indexes map[string]vectorindex.Index) (*Searcher, error) {
	idx, err := buildLexicalIndex(c.AllChunks())
	if err != nil {
		return nil, err
	}
	return &Searcher{corpus: c, registry: registry, indexes: indexes, lexical: idx}, nil
}

// Close releases the in-memory lexical index.
func (s *Searcher) Close() error {
	if s.lexical != nil {
		return s.lexical.Close()
	}
	return nil
}

func buildLexicalIndex(chunks []chunk.Chunk) (bleve.Index, error) {
	im := bleveMapping()
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, err
	}
	batch := idx.NewBatch()
	for i, c := range chunks {
		doc := map[string]any{
			"content":     c.Content,
			"symbol":      c.Symbol,
			"chunk_type":  string(c.Kind),
			"file_path":   c.RelPath,
			"tags":        c.Tags,
			"documentation": c.Documentation,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return nil, err
		}
		if i%500 == 499 {
			if err := idx.Batch(batch); err != nil {
				return nil, err
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func bleveMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"
	text.Store = true
	text.Index = true

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("symbol", text)
	doc.AddFieldMappingsAt("documentation", text)
	doc.AddFieldMappingsAt("chunk_type", keyword)
	doc.AddFieldMappingsAt("file_path", keyword)
	doc.AddFieldMappingsAt("tags", keyword)
	im.DefaultMapping = doc
	return im
}

// Search runs the full hybrid pipeline (spec.md §4.8): classify, select
// model(s), recall semantic+lexical, fuse, filter, truncate.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, Meta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Meta{}, apperr.New(apperr.CodeInvalidRequest, "search query must not be empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	kind := Classify(query)
	meta := Meta{QueryKind: kind}

	k := limit * candidateMultiplier

	lexRanked, err := s.lexicalRecall(query, k)
	if err != nil {
		return nil, meta, apperr.Wrap(apperr.CodeInternal, err, "lexical recall failed")
	}

	var semRanked []string
	if opts.AllowSemantic {
		modelID := opts.ModelID
		var model embed.Model
		var ok bool
		if modelID != "" {
			model, ok = s.registry.Get(modelID)
		} else {
			model, ok = s.registry.Primary()
			modelID = model.ID
		}
		idx := s.indexes[modelID]
		switch {
		case !ok:
			meta.DegradationReason = "embedding_unavailable"
		case idx == nil || idx.Len() == 0:
			meta.DegradationReason = "empty_corpus"
		default:
			text := model.Render(classifyMode(kind), query)
			if tmpl := model.Templates[string(kind)]; tmpl != "" {
				text = fmt.Sprintf(tmpl, query)
			}
			vecs, embedErr := model.Provider.Embed(ctx, []string{text}, embed.EmbedModeQuery)
			if embedErr != nil || len(vecs) == 0 {
				meta.DegradationReason = "embedding_unavailable"
			} else {
				hits, searchErr := idx.Search(vecs[0], k)
				if searchErr != nil {
					meta.DegradationReason = "embedding_unavailable"
				} else {
					meta.SemanticUsed = true
					meta.SemanticModel = modelID
					for _, h := range hits {
						semRanked = append(semRanked, h.ChunkID)
					}
				}
			}
		}
	} else {
		meta.DegradationReason = "semantic_disabled"
	}

	fused := fuse(lexRanked, semRanked)
	fused = boostASTFeatures(fused, query, s.corpus)

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := s.corpus.GetChunk(f.chunkID)
		if !ok {
			continue
		}
		results = append(results, Result{ChunkID: f.chunkID, Chunk: c, Score: f.score, Semantic: f.semantic, Lexical: f.lexical})
	}

	results = applyFilters(results, opts.Filters)

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID // deterministic tie-break
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, meta, nil
}

func classifyMode(k QueryKind) embed.EmbedMode {
	// Every query kind embeds in query mode; a template keyed on the
	// query kind itself is applied separately in Search.
	switch k {
	default:
		return embed.EmbedModeQuery
	}
}

func (s *Searcher) lexicalRecall(query string, k int) ([]string, error) {
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"file_path"}
	res, err := s.lexical.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

type fusedResult struct {
	chunkID  string
	score    float64
	semantic bool
	lexical  bool
}

// fuse combines ranked id lists via reciprocal rank fusion (spec.md §4.8
// step 5), tie-breaking lexicographically on chunk-id for determinism.
func fuse(lists ...[]string) []fusedResult {
	const rrfK = 60.0
	scores := make(map[string]float64)
	semantic := make(map[string]bool)
	lexical := make(map[string]bool)
	for li, list := range lists {
		for rank, id := range list {
			scores[id] += 1.0 / (rrfK + float64(rank+1))
			if li == 0 {
				lexical[id] = true
			} else {
				semantic[id] = true
			}
		}
	}
	out := make([]fusedResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedResult{chunkID: id, score: score, semantic: semantic[id], lexical: lexical[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// boostASTFeatures adds 1.0 to results whose symbol name equals the
// query case-insensitively (spec.md §4.8 step 5 "optionally boosted by
// AST features"); chunk_type does not affect the score.
func boostASTFeatures(results []fusedResult, query string, c *corpus.Corpus) []fusedResult {
	q := strings.TrimSpace(query)
	for i := range results {
		ch, ok := c.GetChunk(results[i].chunkID)
		if !ok {
			continue
		}
		if ch.Symbol != "" && strings.EqualFold(ch.Symbol, q) {
			results[i].score += 1.0
		}
	}
	return results
}

// applyFilters enforces path include/exclude, file_pattern, prefer_code
// and include_docs (spec.md §4.8 step 6).
func applyFilters(results []Result, f Filters) []Result {
	var include, exclude []string
	include, exclude = f.IncludePaths, f.ExcludePaths
	var pattern glob.Glob
	if f.FilePattern != "" {
		pattern, _ = glob.Compile(f.FilePattern, '/')
	}
	includeDocs := true
	if f.IncludeDocs != nil {
		includeDocs = *f.IncludeDocs
	}

	out := results[:0]
	for _, r := range results {
		path := r.Chunk.RelPath
		if len(include) > 0 && !hasPrefixAny(path, include) {
			continue
		}
		if len(exclude) > 0 && hasPrefixAny(path, exclude) {
			continue
		}
		if pattern != nil && !pattern.Match(path) && !strings.Contains(path, f.FilePattern) {
			continue
		}
		isDoc := strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".rst")
		if isDoc && !includeDocs {
			continue
		}
		if f.PreferCode && isDoc {
			r.Score *= 0.5
		}
		out = append(out, r)
	}
	return out
}

func hasPrefixAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
