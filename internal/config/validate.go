package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidProvider indicates an unsupported embedding provider.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrInvalidDimensions indicates invalid embedding dimensions.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrEmptyModelID indicates a model entry with no id.
	ErrEmptyModelID = errors.New("empty model id")

	// ErrNoModels indicates no embedding models configured.
	ErrNoModels = errors.New("no embedding models configured")

	// ErrInvalidChunking indicates invalid chunking configuration.
	ErrInvalidChunking = errors.New("invalid chunking configuration")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}
	if err := validateChunking(&cfg.Chunking); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error

	if len(cfg.Models) == 0 {
		errs = append(errs, ErrNoModels)
	}

	seen := make(map[string]bool, len(cfg.Models))
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if strings.TrimSpace(m.ID) == "" {
			errs = append(errs, fmt.Errorf("%w: model[%d]", ErrEmptyModelID, i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("duplicate model id %q", m.ID))
		}
		seen[m.ID] = true

		provider := strings.ToLower(m.Provider)
		if provider != "" && provider != "stub" && provider != "mock" && provider != "remote" {
			errs = append(errs, fmt.Errorf("%w: model %q: must be 'stub' or 'remote', got %q", ErrInvalidProvider, m.ID, m.Provider))
		}
		if provider == "remote" && strings.TrimSpace(m.Endpoint) == "" {
			errs = append(errs, fmt.Errorf("model %q: provider=remote requires an endpoint", m.ID))
		}
		if m.Dimensions < 0 {
			errs = append(errs, fmt.Errorf("%w: model %q: dimensions must not be negative, got %d", ErrInvalidDimensions, m.ID, m.Dimensions))
		}
		for kind := range m.Templates {
			if !recognizedQueryKinds[kind] {
				errs = append(errs, fmt.Errorf("model %q: unrecognized query kind %q in templates (expected one of identifier, path, conceptual)", m.ID, kind))
			}
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateChunking(cfg *ChunkingConfig) error {
	var errs []error

	if cfg.MinChunkTokens < 0 {
		errs = append(errs, fmt.Errorf("%w: min_chunk_tokens must not be negative, got %d", ErrInvalidChunking, cfg.MinChunkTokens))
	}
	if cfg.WindowLines <= 0 {
		errs = append(errs, fmt.Errorf("%w: window_lines must be positive, got %d", ErrInvalidChunking, cfg.WindowLines))
	}
	if cfg.WindowOverlap < 0 {
		errs = append(errs, fmt.Errorf("%w: window_overlap must not be negative, got %d", ErrInvalidChunking, cfg.WindowOverlap))
	}
	if cfg.WindowLines > 0 && cfg.WindowOverlap >= cfg.WindowLines {
		errs = append(errs, fmt.Errorf("%w: window_overlap (%d) should be less than window_lines (%d)", ErrInvalidChunking, cfg.WindowOverlap, cfg.WindowLines))
	}
	if cfg.MaxFileBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_bytes must be positive, got %d", ErrInvalidChunking, cfg.MaxFileBytes))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
