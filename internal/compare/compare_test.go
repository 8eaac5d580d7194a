package compare

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

func buildRunner(t *testing.T) *Runner {
	t.Helper()
	c, err := corpus.Load(filepath.Join(t.TempDir(), "corpus.json"))
	require.NoError(t, err)

	chunker := chunk.New(chunk.DefaultOptions())
	chunks, err := chunker.Chunk([]byte("package a\n\nfunc Authenticate() {}\n"), "a.go")
	require.NoError(t, err)
	c.SetFileChunks("a.go", chunks)

	r := embed.NewRegistry()
	r.Register(embed.Model{ID: "stub", Provider: embed.NewMockProviderDim(8), Dimensions: 8})
	m, _ := r.Primary()
	idx, err := vectorindex.Load(filepath.Join(t.TempDir(), "index.json"), vectorindex.BackendChromem, m.Dimensions)
	require.NoError(t, err)
	for _, ch := range c.AllChunks() {
		vec, err := m.Provider.Embed(context.Background(), []string{ch.Content}, embed.EmbedModePassage)
		require.NoError(t, err)
		require.NoError(t, idx.Add(ch.ID, vec[0]))
	}

	runner, err := New(c, r, map[string]vectorindex.Index{m.ID: idx})
	require.NoError(t, err)
	return runner
}

func TestRunReturnsBaselineAndHybridPerQuery(t *testing.T) {
	runner := buildRunner(t)
	res, err := runner.Run(context.Background(), Options{Queries: []string{"Authenticate"}})
	require.NoError(t, err)
	require.Len(t, res.Comparisons, 1)
	require.Equal(t, "Authenticate", res.Comparisons[0].Query)
	require.NotEmpty(t, res.Comparisons[0].Baseline)
	require.NotEmpty(t, res.Comparisons[0].Hybrid)
}

func TestRunReportsCacheInvalidation(t *testing.T) {
	runner := buildRunner(t)
	res, err := runner.Run(context.Background(), Options{Queries: []string{"Authenticate"}, InvalidateCache: true})
	require.NoError(t, err)
	require.True(t, res.CacheInvalidated)
}
