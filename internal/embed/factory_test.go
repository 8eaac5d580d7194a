package embed

import (
	"context"
	"testing"

	"github.com/cortexlens/contextd/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_StubDefault(t *testing.T) {
	p, err := NewProvider(Config{ID: "default"})
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimensions())

	vecs, err := p.Embed(context.Background(), []string{"a", "b"}, EmbedModeQuery)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestNewProvider_RemoteWithoutEndpoint(t *testing.T) {
	_, err := NewProvider(Config{ID: "code", Provider: "remote"})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeEmbeddingUnavailable, appErr.Code)
}

func TestBuildRegistry_PrimaryIsFirst(t *testing.T) {
	reg, err := BuildRegistry([]Config{
		{ID: "default", Dimensions: 384},
		{ID: "code", Dimensions: 384},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	primary, ok := reg.Primary()
	require.True(t, ok)
	assert.Equal(t, "default", primary.ID)

	_, ok = reg.Get("code")
	assert.True(t, ok)
}

func TestBuildRegistry_EmptyIsUnavailable(t *testing.T) {
	_, err := BuildRegistry(nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeEmbeddingUnavailable, apperr.CodeOf(err))
}

func TestEmbedBatches_KeepsOrderAndReportsProgress(t *testing.T) {
	m := Model{ID: "stub", Provider: NewMockProviderDim(8), Dimensions: 8}
	texts := []string{"one", "two", "three", "four", "five"}

	var reported [][2]int
	vecs, err := EmbedBatches(context.Background(), m, texts, EmbedModePassage, 2, func(done, total int) {
		reported = append(reported, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, reported)

	// Batching must not change what each text embeds to.
	direct, err := m.Provider.Embed(context.Background(), []string{m.Render(EmbedModePassage, "three")}, EmbedModePassage)
	require.NoError(t, err)
	assert.Equal(t, direct[0], vecs[2])
}

func TestEmbedBatches_AppliesModelTemplate(t *testing.T) {
	plain := Model{ID: "plain", Provider: NewMockProviderDim(8), Dimensions: 8}
	templated := Model{
		ID: "templated", Provider: NewMockProviderDim(8), Dimensions: 8,
		Templates: map[string]string{string(EmbedModePassage): "passage: %s"},
	}

	a, err := EmbedBatches(context.Background(), plain, []string{"text"}, EmbedModePassage, 2, nil)
	require.NoError(t, err)
	b, err := EmbedBatches(context.Background(), templated, []string{"text"}, EmbedModePassage, 2, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a[0], b[0])
}

func TestEmbedBatches_EmptyInput(t *testing.T) {
	m := Model{ID: "stub", Provider: NewMockProviderDim(8), Dimensions: 8}
	vecs, err := EmbedBatches(context.Background(), m, nil, EmbedModePassage, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
