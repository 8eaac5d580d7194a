// Package compare implements the compare_search tool (spec.md §6.3):
// it runs each query through both a lexical-only baseline and the full
// hybrid pipeline, side by side, for retrieval-quality regression
// checks.
package compare

import (
	"context"

	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/hybrid"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

// Hit is one ranked result within a single query's result set.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	File    string  `json:"file"`
	Score   float64 `json:"score"`
}

// QueryComparison holds one query's baseline and hybrid result sets.
type QueryComparison struct {
	Query    string `json:"query"`
	Baseline []Hit  `json:"baseline"`
	Hybrid   []Hit  `json:"hybrid"`
}

// Result is the compare_search response.
type Result struct {
	Comparisons      []QueryComparison `json:"comparisons"`
	CacheInvalidated bool              `json:"cache_invalidated"`
}

// Options configures a comparison run.
type Options struct {
	Queries         []string
	Limit           int
	InvalidateCache bool
}

// Runner wires a hybrid.Searcher for both its baseline (lexical-only)
// and full-hybrid modes.
type Runner struct {
	searcher *hybrid.Searcher
}

// New builds a Runner over the given corpus and vector indexes.
func New(c *corpus.Corpus, registry *embed.Registry, indexes map[string]vectorindex.Index) (*Runner, error) {
	s, err := hybrid.New(c, registry, indexes)
	if err != nil {
		return nil, err
	}
	return &Runner{searcher: s}, nil
}

// Invalidate replaces the runner's searcher with one whose in-memory
// lexical index is rebuilt now from the corpus's current state. Used when
// invalidate_cache=true signals the caller wants a clean comparison
// rather than one riding on stale cached results.
func (r *Runner) Invalidate(c *corpus.Corpus, registry *embed.Registry, indexes map[string]vectorindex.Index) error {
	s, err := hybrid.New(c, registry, indexes)
	if err != nil {
		return err
	}
	r.searcher = s
	return nil
}

// Run executes opts.Queries against both the lexical-only baseline and
// the full hybrid searcher, returning both result sets per query.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	res := Result{CacheInvalidated: opts.InvalidateCache}
	for _, q := range opts.Queries {
		baseline, _, err := r.searcher.Search(ctx, q, hybrid.Options{Limit: limit, AllowSemantic: false})
		if err != nil {
			return Result{}, err
		}
		full, _, err := r.searcher.Search(ctx, q, hybrid.Options{Limit: limit, AllowSemantic: true})
		if err != nil {
			return Result{}, err
		}
		res.Comparisons = append(res.Comparisons, QueryComparison{
			Query:    q,
			Baseline: toHits(baseline),
			Hybrid:   toHits(full),
		})
	}
	return res, nil
}

func toHits(results []hybrid.Result) []Hit {
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ChunkID: r.ChunkID, File: r.Chunk.RelPath, Score: r.Score})
	}
	return hits
}
