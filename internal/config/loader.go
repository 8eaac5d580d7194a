package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	// → CONTEXT_PROFILE override, if set.
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest to lowest):
//  1. CONTEXT_PROFILE-selected profile JSON under .context/profiles/ (§6.4)
//  2. Environment variables (CONTEXT_*)
//  3. Config file (.context/config.yml or .context/config.yaml)
//  4. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".context")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("CONTEXT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("chunking.min_chunk_tokens")
	v.BindEnv("chunking.window_lines")
	v.BindEnv("chunking.window_overlap")
	v.BindEnv("chunking.max_file_bytes")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Embedding.Models) == 0 {
		cfg.Embedding.Models = Default().Embedding.Models
	}

	override, err := LoadProfile(l.rootDir)
	if err != nil {
		return nil, err
	}
	if override != nil {
		cfg.Embedding.Models = override.Models
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("paths.code", defaults.Paths.Code)
	v.SetDefault("paths.docs", defaults.Paths.Docs)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)

	v.SetDefault("chunking.min_chunk_tokens", defaults.Chunking.MinChunkTokens)
	v.SetDefault("chunking.window_lines", defaults.Chunking.WindowLines)
	v.SetDefault("chunking.window_overlap", defaults.Chunking.WindowOverlap)
	v.SetDefault("chunking.max_file_bytes", defaults.Chunking.MaxFileBytes)
}

// LoadConfig is a convenience function that creates a loader and loads
// config for the current working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
