// Package config loads the project-level contextd configuration:
// defaults, then `.context/config.yml`, then `CONTEXT_*` environment
// variables, then an optional named profile selected by
// CONTEXT_PROFILE (spec.md §6.4).
package config

// Config is the complete project configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
}

// EmbeddingConfig names the embedding models available to this project.
// Models[0] is primary (spec.md §3 "one or several named models", §4.2).
type EmbeddingConfig struct {
	Models []ModelConfig `yaml:"models" mapstructure:"models"`
}

// ModelConfig configures one named embedding model.
type ModelConfig struct {
	ID         string            `yaml:"id" mapstructure:"id"`
	Provider   string            `yaml:"provider" mapstructure:"provider"` // "stub" or "remote"
	Endpoint   string            `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string            `yaml:"api_key" mapstructure:"api_key"`
	Dimensions int               `yaml:"dimensions" mapstructure:"dimensions"`
	// Templates maps a query kind (identifier/path/conceptual, spec.md
	// §4.8) to a text template applied before embedding a query.
	Templates map[string]string `yaml:"templates" mapstructure:"templates"`
}

// PathsConfig defines which files to index and which to ignore.
type PathsConfig struct {
	Code   []string `yaml:"code" mapstructure:"code"`     // glob patterns for code files
	Docs   []string `yaml:"docs" mapstructure:"docs"`     // glob patterns for documentation
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to ignore
}

// ChunkingConfig defines how content is chunked for indexing (C1, spec.md §4.1).
type ChunkingConfig struct {
	MinChunkTokens int `yaml:"min_chunk_tokens" mapstructure:"min_chunk_tokens"`
	WindowLines    int `yaml:"window_lines" mapstructure:"window_lines"`       // fallback windowed-chunk size
	WindowOverlap  int `yaml:"window_overlap" mapstructure:"window_overlap"`   // fallback windowed-chunk overlap
	MaxFileBytes   int `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`   // files above this are skipped
}

// recognizedQueryKinds are the only keys allowed under a model's
// `templates` map (spec.md §4.8's query classification).
var recognizedQueryKinds = map[string]bool{
	"identifier": true,
	"path":       true,
	"conceptual": true,
}

// Default returns a configuration with sensible defaults: a single
// stub embedding model (so every environment without a reachable
// embedding runtime still has semantic recall via CONTEXT_EMBEDDING_MODE
// honored deeper in internal/embed), common source/doc globs, and the
// teacher's ignore-pattern list.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Models: []ModelConfig{
				{ID: "default", Provider: "stub", Dimensions: 384},
			},
		},
		Paths: PathsConfig{
			Code: []string{
				"**/*.go",
				"**/*.ts",
				"**/*.tsx",
				"**/*.js",
				"**/*.jsx",
				"**/*.py",
				"**/*.rs",
				"**/*.c",
				"**/*.cpp",
				"**/*.cc",
				"**/*.h",
				"**/*.hpp",
				"**/*.php",
				"**/*.rb",
				"**/*.java",
			},
			Docs: []string{
				"**/*.md",
				"**/*.rst",
			},
			Ignore: []string{
				"node_modules/**",
				"vendor/**",
				".git/**",
				"dist/**",
				"build/**",
				"target/**",
				"__pycache__/**",
				"*.test",
				"*.pyc",
				".context/**",
				".context-finder/**",
			},
		},
		Chunking: ChunkingConfig{
			MinChunkTokens: 20,
			WindowLines:    120,
			WindowOverlap:  20,
			MaxFileBytes:   1 << 20,
		},
	}
}
