package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/apperr"
	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

func buildCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.Load(t.TempDir() + "/corpus.json")
	require.NoError(t, err)
	c.SetFileChunks("auth/login.go", []chunk.Chunk{
		{
			ID: "auth/login.go:1:10", RelPath: "auth/login.go", StartLine: 1, EndLine: 10,
			Symbol: "Authenticate", Kind: chunk.KindFunction, QualifiedName: "Authenticate",
			Content: "func Authenticate(user, pass string) (bool, error) {\n// checks credentials\n}",
		},
	})
	c.SetFileChunks("docs/auth.md", []chunk.Chunk{
		{
			ID: "docs/auth.md:1:5", RelPath: "docs/auth.md", StartLine: 1, EndLine: 5,
			Kind: chunk.KindDoc, Content: "# Authentication\nDescribes how login works.",
		},
	})
	return c
}

func registryWithStub(dim int) *embed.Registry {
	r := embed.NewRegistry()
	r.Register(embed.Model{ID: "stub", Provider: embed.NewMockProviderDim(dim), Dimensions: dim})
	return r
}

func indexedOn(t *testing.T, c *corpus.Corpus, r *embed.Registry) map[string]vectorindex.Index {
	t.Helper()
	m, _ := r.Primary()
	idx, err := vectorindex.Load(t.TempDir()+"/index.json", vectorindex.BackendChromem, m.Dimensions)
	require.NoError(t, err)
	for _, ch := range c.AllChunks() {
		vec, err := m.Provider.Embed(context.Background(), []string{ch.Content}, embed.EmbedModePassage)
		require.NoError(t, err)
		require.NoError(t, idx.Add(ch.ID, vec[0]))
	}
	return map[string]vectorindex.Index{m.ID: idx}
}

func TestClassifyKinds(t *testing.T) {
	require.Equal(t, KindPath, Classify("internal/auth/login.go"))
	require.Equal(t, KindIdentifier, Classify("Authenticate"))
	require.Equal(t, KindIdentifier, Classify("parse_config"))
	require.Equal(t, KindConceptual, Classify("how does login authentication work here"))
}

func TestSearchEmptyQueryIsInvalidRequest(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	s, err := New(c, r, indexedOn(t, c, r))
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Search(context.Background(), "   ", Options{})
	require.Error(t, err)
	require.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))
}

func TestSearchFindsLexicalMatch(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	s, err := New(c, r, indexedOn(t, c, r))
	require.NoError(t, err)
	defer s.Close()

	results, meta, err := s.Search(context.Background(), "Authenticate", Options{Limit: 5, AllowSemantic: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "auth/login.go:1:10", results[0].ChunkID)
	require.True(t, meta.SemanticUsed)
}

func TestSearchPreferCodeDownranksDocs(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	s, err := New(c, r, indexedOn(t, c, r))
	require.NoError(t, err)
	defer s.Close()

	plain, _, err := s.Search(context.Background(), "login", Options{Limit: 5, AllowSemantic: true})
	require.NoError(t, err)
	preferCode, _, err := s.Search(context.Background(), "login", Options{
		Limit: 5, AllowSemantic: true, Filters: Filters{PreferCode: true},
	})
	require.NoError(t, err)

	scoreOf := func(rs []Result, path string) float64 {
		for _, r := range rs {
			if r.Chunk.RelPath == path {
				return r.Score
			}
		}
		return -1
	}
	plainDocScore := scoreOf(plain, "docs/auth.md")
	preferredDocScore := scoreOf(preferCode, "docs/auth.md")
	if plainDocScore >= 0 && preferredDocScore >= 0 {
		require.Less(t, preferredDocScore, plainDocScore, "prefer_code should downrank doc chunks")
	}
}

func TestSearchExcludeDocsWhenIncludeDocsFalse(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	s, err := New(c, r, indexedOn(t, c, r))
	require.NoError(t, err)
	defer s.Close()

	no := false
	results, _, err := s.Search(context.Background(), "login", Options{
		Limit: 5, AllowSemantic: true, Filters: Filters{IncludeDocs: &no},
	})
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "docs/auth.md", r.Chunk.RelPath)
	}
}

func TestSearchDegradesToLexicalWhenSemanticDisallowed(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	s, err := New(c, r, indexedOn(t, c, r))
	require.NoError(t, err)
	defer s.Close()

	results, meta, err := s.Search(context.Background(), "Authenticate", Options{Limit: 5, AllowSemantic: false})
	require.NoError(t, err)
	require.False(t, meta.SemanticUsed)
	require.Equal(t, "semantic_disabled", meta.DegradationReason)
	require.NotEmpty(t, results)
}

func TestSearchDegradesWhenIndexEmpty(t *testing.T) {
	c := buildCorpus(t)
	r := registryWithStub(8)
	m, _ := r.Primary()
	emptyIdx, err := vectorindex.Load(t.TempDir()+"/empty.json", vectorindex.BackendChromem, m.Dimensions)
	require.NoError(t, err)

	s, err := New(c, r, map[string]vectorindex.Index{m.ID: emptyIdx})
	require.NoError(t, err)
	defer s.Close()

	results, meta, err := s.Search(context.Background(), "Authenticate", Options{Limit: 5, AllowSemantic: true})
	require.NoError(t, err)
	require.False(t, meta.SemanticUsed)
	require.Equal(t, "empty_corpus", meta.DegradationReason)
	require.NotEmpty(t, results)
}
