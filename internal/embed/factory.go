package embed

import (
	"fmt"
	"os"

	"github.com/cortexlens/contextd/internal/apperr"
)

// Config describes one named model to load into a Registry (spec.md
// §4.2, §3 "one or several named models").
type Config struct {
	// ID names this model within its profile (e.g. "default", "code", "doc").
	ID string

	// Provider selects the backing implementation: "stub" (deterministic,
	// no runtime required) or "remote" (an HTTP embedding endpoint).
	Provider string

	// Endpoint is the URL for the embedding service (remote provider only).
	Endpoint string

	// APIKey authenticates against a remote embedding endpoint.
	APIKey string

	// Dimensions sets the stub provider's vector size (384 when zero or
	// negative). Vectors returned by a remote provider are not checked
	// against it.
	Dimensions int

	// Templates renders raw text before embedding, keyed by embed mode or
	// by query kind (see Model.Templates).
	Templates map[string]string
}

// StubEnvVar forces every configured model onto the deterministic stub
// provider, overriding Config.Provider. Set this in test environments
// and in any profile with no embedding runtime reachable.
const StubEnvVar = "CONTEXT_EMBEDDING_MODE"

// NewProvider builds a single Provider from config. It never fails for
// the stub provider; a misconfigured or unreachable remote provider
// returns an apperr with CodeEmbeddingUnavailable so callers can fall
// back to lexical-only retrieval (spec.md §4.2, §4.8).
func NewProvider(config Config) (Provider, error) {
	provider := config.Provider
	if os.Getenv(StubEnvVar) == "stub" {
		provider = "stub"
	}

	switch provider {
	case "stub", "mock", "": // empty defaults to the stub so tests never need a runtime
		dims := config.Dimensions
		if dims <= 0 {
			dims = 384
		}
		return NewMockProviderDim(dims), nil

	case "remote":
		if config.Endpoint == "" {
			return nil, apperr.New(apperr.CodeEmbeddingUnavailable,
				"model %q: provider=remote requires an endpoint", config.ID).
				WithHint("set the model's endpoint or switch CONTEXT_EMBEDDING_MODE=stub")
		}
		p, err := newRemoteProvider(config)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeEmbeddingUnavailable, err,
				"model %q: remote provider unavailable", config.ID)
		}
		return p, nil

	default:
		return nil, apperr.New(apperr.CodeEmbeddingUnavailable,
			"model %q: unsupported embedding provider %q (supported: stub, remote)", config.ID, config.Provider)
	}
}

// BuildRegistry constructs a Registry from named model configs. The
// first entry becomes primary. Any per-model failure aborts the whole
// registry build with CodeEmbeddingUnavailable — callers (C6 indexer,
// C8 hybrid search) must treat that as "no semantic recall available"
// and degrade to lexical-only rather than fail the request outright.
func BuildRegistry(configs []Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, apperr.New(apperr.CodeEmbeddingUnavailable, "no embedding models configured")
	}
	reg := NewRegistry()
	for _, cfg := range configs {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("embed: building model %q: %w", cfg.ID, err)
		}
		reg.Register(Model{
			ID:         cfg.ID,
			Provider:   p,
			Dimensions: p.Dimensions(),
			Templates:  cfg.Templates,
		})
	}
	return reg, nil
}
