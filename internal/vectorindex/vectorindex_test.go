package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func vec(vals ...float32) []float32 { return vals }

func TestChromemAddSearchPurge(t *testing.T) {
	idx, err := newEmpty(BackendChromem, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Add("a.go:1:2", vec(1, 0, 0)))
	require.NoError(t, idx.Add("b.go:1:2", vec(0, 1, 0)))
	require.Equal(t, 2, idx.Len())

	results, err := idx.Search(vec(1, 0, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.go:1:2", results[0].ChunkID)

	dropped := idx.PurgeMissing(map[string]bool{"a.go:1:2": true})
	require.Equal(t, 1, dropped)
	require.Equal(t, 1, idx.Len())
}

func TestHNSWAddSearchPurge(t *testing.T) {
	idx, err := newEmpty(BackendHNSW, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Add("x:1:1", vec(1, 0)))
	require.NoError(t, idx.Add("y:1:1", vec(0, 1)))
	require.Equal(t, 2, idx.Len())

	results, err := idx.Search(vec(1, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	dropped := idx.PurgeMissing(map[string]bool{"x:1:1": true})
	require.Equal(t, 1, dropped)
}

func TestDimensionMismatchRejected(t *testing.T) {
	idx, err := newEmpty(BackendHNSW, 2)
	require.NoError(t, err)
	err = idx.Add("x:1:1", vec(1, 0, 0))
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	idx, err := newEmpty(BackendChromem, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Add("a:1:1", vec(1, 0)))
	require.NoError(t, idx.Add("b:1:1", vec(0, 1)))
	require.NoError(t, idx.Save(path))

	reloaded, err := Load(path, BackendChromem, 2)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())

	results, err := reloaded.Search(vec(1, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a:1:1", results[0].ChunkID)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "missing.json"), BackendHNSW, 4)
	require.NoError(t, err)
	require.Equal(t, 0, idx.Len())
	require.Equal(t, 4, idx.Dimension())
}

func TestLoadSchemaDriftRebuildsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	idx, err := newEmpty(BackendChromem, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Add("a:1:1", vec(1, 0)))
	require.NoError(t, idx.Save(path))

	// Different dimension => treated as schema drift, rebuilt empty.
	reloaded, err := Load(path, BackendChromem, 5)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.Len())
	require.Equal(t, 5, reloaded.Dimension())
}
