// Package embed implements C2, the embedding model contract (spec.md
// §4.2). The model runtime itself (fastembed/ONNX or a remote API) is
// an external collaborator out of scope here; what's specified is the
// Provider contract, batching, named multi-model selection, and the
// deterministic stub used for tests and for any profile with no
// runtime available.
package embed

import (
	"context"
	"fmt"
	"sync"
)

// EmbedMode specifies the type of embedding to generate.
type EmbedMode string

const (
	// EmbedModeQuery generates embeddings optimized for search queries.
	// Use this when embedding user questions or search terms.
	EmbedModeQuery EmbedMode = "query"

	// EmbedModePassage generates embeddings optimized for document passages.
	// Use this when embedding code chunks, documentation, or any searchable content.
	EmbedModePassage EmbedMode = "passage"
)

// Provider defines the interface for embedding text into vectors.
// Implementations may use local models, remote APIs, or other embedding services.
type Provider interface {
	// Embed converts a slice of text strings into their vector representations.
	// The mode parameter specifies whether embeddings are for queries or passages.
	// Returns a slice of vectors where each vector is a slice of float32 values.
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)

	// Dimensions returns the dimensionality of the embedding vectors produced by this provider.
	Dimensions() int

	// Close releases any resources held by the provider.
	// For local providers, this may include stopping background processes.
	Close() error
}

// Model names one configured embedding model (spec.md §3: "one or
// several named models"). Hybrid search (C8) may route a query to a
// specific model by id, or fall back to the registry's primary.
type Model struct {
	ID         string
	Provider   Provider
	Dimensions int
	// Templates holds fmt templates applied to raw text before embedding.
	// Render looks them up by embed mode, e.g. "query: %s" vs
	// "passage: %s" for asymmetric embedding models; hybrid search also
	// looks up the query kind (identifier/path/conceptual), which takes
	// precedence for queries. A missing entry means no template is applied.
	Templates map[string]string
}

// Render formats text through this model's template for mode, if any.
func (m Model) Render(mode EmbedMode, text string) string {
	if tmpl, ok := m.Templates[string(mode)]; ok && tmpl != "" {
		return fmt.Sprintf(tmpl, text)
	}
	return text
}

// Registry holds the embedding models configured for a project root,
// keyed by model id, with one designated primary.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]Model
	primary string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds or replaces a model. The first model registered
// becomes primary unless SetPrimary is called afterward.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m
	if r.primary == "" {
		r.primary = m.ID
	}
}

// SetPrimary designates the model used when a request names none.
func (r *Registry) SetPrimary(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return fmt.Errorf("embed: unknown model %q", id)
	}
	r.primary = id
	return nil
}

// Get returns a registered model by id.
func (r *Registry) Get(id string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// Primary returns the registry's designated default model.
func (r *Registry) Primary() (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[r.primary]
	return m, ok
}

// IDs returns every registered model id, in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many models are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Close closes every registered model's provider and returns the
// first error encountered, if any.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, m := range r.models {
		if err := m.Provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
