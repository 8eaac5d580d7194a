package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// remoteProvider calls an already-running embedding HTTP endpoint over
// the same /embed JSON wire protocol the teacher's local cortex-embed
// server speaks (internal/embed/local.go embedRequest/embedResponse).
// Spawning and supervising that server process is the out-of-scope
// model runtime (spec.md §1); this provider only speaks its wire
// protocol against a URL supplied in config.
type remoteProvider struct {
	endpoint   string
	apiKey     string
	dimensions int
	client     *http.Client
}

func newRemoteProvider(cfg Config) (Provider, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embed: remote model %q requires Dimensions > 0", cfg.ID)
	}
	return &remoteProvider{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Mode  string   `json:"mode"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *remoteProvider) Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts, Mode: string(mode)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: request to %s failed: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: %s returned status %d", p.endpoint, resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: decoding response from %s: %w", p.endpoint, err)
	}
	return out.Embeddings, nil
}

func (p *remoteProvider) Dimensions() int { return p.dimensions }

func (p *remoteProvider) Close() error { return nil }
