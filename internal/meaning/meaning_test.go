package meaning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Project\nline2\nline3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	return dir
}

func TestBuildPackFindsCanonAndArtifactAnchors(t *testing.T) {
	dir := writeProject(t)
	pack := BuildPack(dir)
	var sawReadme, sawGoMod bool
	for _, a := range pack.Anchors {
		if a.Title == "README.md" {
			sawReadme = true
			require.Equal(t, KindCanon, a.Kind)
		}
		if a.Title == "go.mod" {
			sawGoMod = true
			require.Equal(t, KindArtifact, a.Kind)
		}
	}
	require.True(t, sawReadme)
	require.True(t, sawGoMod)
}

func TestFocusFiltersByTitle(t *testing.T) {
	dir := writeProject(t)
	pack := Focus(dir, "readme")
	require.Len(t, pack.Anchors, 1)
	require.Equal(t, "README.md", pack.Anchors[0].Title)
}

func TestFetchReturnsVerbatimContent(t *testing.T) {
	dir := writeProject(t)
	pack := BuildPack(dir)
	var readmePointers []Pointer
	for _, a := range pack.Anchors {
		if a.Title == "README.md" {
			readmePointers = a.Pointers
		}
	}
	require.NotEmpty(t, readmePointers)

	evidence, err := Fetch(dir, readmePointers, false)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	require.False(t, evidence[0].Stale)
	require.Contains(t, evidence[0].Content, "# Project")
}

func TestFetchDetectsStaleHash(t *testing.T) {
	dir := writeProject(t)
	pointer := Pointer{File: "README.md", StartLine: 1, EndLine: 1, SourceHash: "not-the-real-hash"}

	evidence, err := Fetch(dir, []Pointer{pointer}, false)
	require.NoError(t, err)
	require.True(t, evidence[0].Stale)
}

func TestFetchStrictHashFailsOnMismatch(t *testing.T) {
	dir := writeProject(t)
	pointer := Pointer{File: "README.md", StartLine: 1, EndLine: 1, SourceHash: "not-the-real-hash"}

	_, err := Fetch(dir, []Pointer{pointer}, true)
	require.Error(t, err)
}

func TestFetchMissingFileIsNotFound(t *testing.T) {
	dir := writeProject(t)
	_, err := Fetch(dir, []Pointer{{File: "does-not-exist.md", StartLine: 1, EndLine: 1}}, false)
	require.Error(t, err)
}
