package indexpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/project"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

func testRegistry() *embed.Registry {
	r := embed.NewRegistry()
	r.Register(embed.Model{ID: "stub", Provider: embed.NewMockProviderDim(8), Dimensions: 8})
	return r
}

func writeRoot(t *testing.T, files map[string]string) *project.Root {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	root, err := project.Resolve(dir)
	require.NoError(t, err)
	return root
}

func TestIndexFullThenIncrementalNoOp(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"src/lib.go": "package src\n\nfunc Greet() string { return \"hi\" }\n",
	})

	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)

	stats, err := p.IndexFull(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesScanned)
	require.Greater(t, stats.ChunksTotal, 0)

	reopened, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	stats2, err := reopened.Index(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats2.FilesAdded)
	require.Equal(t, 0, stats2.FilesChanged)
	require.Equal(t, stats.ChunksTotal, stats2.ChunksTotal)
}

func TestChangedFileIsReprocessed(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
	})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	_, err = p.IndexFull(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root.Path, "a.go"),
		[]byte("package a\n\nfunc A() {}\n\nfunc B() {}\n"), 0o644))

	stats, err := p.Index(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesChanged)
	require.Equal(t, 0, stats.FilesAdded)

	ids := p.Corpus.AllChunkIDs()
	found := false
	for id := range ids {
		if ch, ok := p.Corpus.GetChunk(id); ok && ch.Symbol == "B" {
			found = true
		}
	}
	require.True(t, found, "new symbol must be chunked after the change")
}

func TestDeletedFileDropsFromCorpusAndIndex(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
	})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	_, err = p.IndexFull(context.Background())
	require.NoError(t, err)
	require.Contains(t, p.Corpus.Files(), "a.go")

	require.NoError(t, os.Remove(filepath.Join(root.Path, "a.go")))

	stats, err := p.Index(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesRemoved)
	require.NotContains(t, p.Corpus.Files(), "a.go")

	for _, idx := range p.Indexes {
		require.Equal(t, 0, idx.Len(), "vector entries for the deleted file's chunks must be purged")
	}
}

func TestCorpusMissingOnDiskRebuildsFromScratch(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
	})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	_, err = p.IndexFull(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(root.CorpusPath()))

	reopened, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 0, reopened.Corpus.Len())

	stats, err := reopened.Index(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesAdded)
}
