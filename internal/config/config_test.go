package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	require.Len(t, cfg.Embedding.Models, 1)
	assert.Equal(t, "default", cfg.Embedding.Models[0].ID)
	assert.Equal(t, "stub", cfg.Embedding.Models[0].Provider)
	assert.Equal(t, 384, cfg.Embedding.Models[0].Dimensions)

	assert.NotEmpty(t, cfg.Paths.Code)
	assert.NotEmpty(t, cfg.Paths.Ignore)

	assert.Equal(t, 20, cfg.Chunking.MinChunkTokens)
	assert.Equal(t, 120, cfg.Chunking.WindowLines)
	assert.Equal(t, 20, cfg.Chunking.WindowOverlap)

	require.NoError(t, Validate(cfg))
}

func TestLoadConfigFromDir_UsesDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Paths.Code, cfg.Paths.Code)
}

func TestLoadConfigFromDir_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, ".context")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	yml := "chunking:\n  min_chunk_tokens: 5\n  window_lines: 50\n"
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "config.yml"), []byte(yml), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Chunking.MinChunkTokens)
	assert.Equal(t, 50, cfg.Chunking.WindowLines)
}

func TestLoadConfigFromDir_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, ".context")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	yml := "chunking:\n  window_lines: 50\n"
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "config.yml"), []byte(yml), 0o644))

	t.Setenv("CONTEXT_CHUNKING_WINDOW_LINES", "77")
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.Chunking.WindowLines)
}

func TestLoadConfigFromDir_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, ".context")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "config.yml"), []byte("not: [valid"), 0o644))

	_, err := LoadConfigFromDir(dir)
	require.Error(t, err)
}

func TestLoadConfigFromDir_ProfileOverridesModels(t *testing.T) {
	dir := t.TempDir()
	profilesDir := filepath.Join(dir, ".context", "profiles")
	require.NoError(t, os.MkdirAll(profilesDir, 0o755))
	profile := `{"embedding":{"models":[{"id":"code","provider":"stub","dimensions":256}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(profilesDir, "ci.json"), []byte(profile), 0o644))

	t.Setenv(ProfileEnvVar, "ci")
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Embedding.Models, 1)
	assert.Equal(t, "code", cfg.Embedding.Models[0].ID)
	assert.Equal(t, 256, cfg.Embedding.Models[0].Dimensions)
}

func TestLoadConfigFromDir_InvalidProfileNamesOffendingPath(t *testing.T) {
	dir := t.TempDir()
	profilesDir := filepath.Join(dir, ".context", "profiles")
	require.NoError(t, os.MkdirAll(profilesDir, 0o755))
	profile := `{"embedding":{"models":[{"id":"default","provider":"stub"}],"query":{"oops":"broken"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(profilesDir, "bad.json"), []byte(profile), 0o644))

	t.Setenv(ProfileEnvVar, "bad")
	_, err := LoadConfigFromDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.query.oops")
}

func TestValidate_AcceptsValidConfiguration(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Models[0].Provider = "openai"
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestValidate_RejectsRemoteWithoutEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Models[0].Provider = "remote"
	cfg.Embedding.Models[0].Endpoint = ""
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsNoModels(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Models = nil
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestValidate_RejectsDuplicateModelIDs(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Models = append(cfg.Embedding.Models, ModelConfig{ID: "default", Provider: "stub"})
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsNegativeWindowOverlap(t *testing.T) {
	cfg := Default()
	cfg.Chunking.WindowOverlap = -1
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsOverlapTooLarge(t *testing.T) {
	cfg := Default()
	cfg.Chunking.WindowLines = 10
	cfg.Chunking.WindowOverlap = 10
	require.Error(t, Validate(cfg))
}

func TestValidate_ReturnsMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Models = nil
	cfg.Chunking.WindowLines = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
