package cli

import (
	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/config"
	"github.com/cortexlens/contextd/internal/cursorstore"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/indexpipeline"
	"github.com/cortexlens/contextd/internal/project"
	"github.com/cortexlens/contextd/internal/readpack"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

// chunkOptions translates the project's configured chunking section
// into the chunker's runtime options (spec.md §4.1/§6.4).
func chunkOptions(cfg *config.Config) chunk.Options {
	return chunk.Options{
		MaxFileBytes:   cfg.Chunking.MaxFileBytes,
		MinChunkTokens: cfg.Chunking.MinChunkTokens,
		WindowLines:    cfg.Chunking.WindowLines,
		WindowOverlap:  cfg.Chunking.WindowOverlap,
	}
}

// buildRegistry turns the project's configured embedding models
// (config.yml/profile, spec.md §3/§6.4) into a Registry. The first
// configured model becomes primary. CONTEXT_EMBEDDING_MODE=stub
// (handled inside embed.NewProvider) overrides provider selection for
// any environment without an embedding runtime reachable.
func buildRegistry(cfg *config.Config) (*embed.Registry, error) {
	configs := make([]embed.Config, len(cfg.Embedding.Models))
	for i, m := range cfg.Embedding.Models {
		configs[i] = embed.Config{
			ID:         m.ID,
			Provider:   m.Provider,
			Endpoint:   m.Endpoint,
			APIKey:     m.APIKey,
			Dimensions: m.Dimensions,
			Templates:  m.Templates,
		}
	}
	return embed.BuildRegistry(configs)
}

// openPipeline resolves the project root and opens its indexing
// pipeline (corpus, vector indexes, symbol graph).
func openPipeline(rootPath string) (*indexpipeline.Pipeline, error) {
	root, err := project.Resolve(rootPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigFromDir(root.Path)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return indexpipeline.Open(root, registry, vectorindex.BackendChromem, chunkOptions(cfg))
}

// buildEngine opens a read-pack orchestrator engine for rootPath,
// wiring it to the project's corpus, symbol graph, vector indexes, and
// a process-local cursor store (spec.md §4.11, §4.13). It also returns
// the underlying pipeline so callers that also need to drive re-indexing
// (serve's "index" MCP tool) share the same opened corpus/indexes rather
// than loading them a second time with different options.
func buildEngine(rootPath string) (*readpack.Engine, *indexpipeline.Pipeline, error) {
	pipeline, err := openPipeline(rootPath)
	if err != nil {
		return nil, nil, err
	}
	cursors, err := cursorstore.Open(pipeline.Root.CursorStorePath(), cursorstore.DefaultCapacity, cursorstore.DefaultTTL)
	if err != nil {
		cursors, err = cursorstore.Open(project.UserGlobalCursorStorePath(), cursorstore.DefaultCapacity, cursorstore.DefaultTTL)
		if err != nil {
			return nil, nil, err
		}
	}
	engine := &readpack.Engine{
		Root:     pipeline.Root,
		Corpus:   pipeline.Corpus,
		Graph:    pipeline.Graph,
		Registry: pipeline.Registry,
		Indexes:  pipeline.Indexes,
		Cursors:  cursors,
		Pipeline: pipeline,
	}
	return engine, pipeline, nil
}
