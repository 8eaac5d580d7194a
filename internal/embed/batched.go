package embed

import (
	"context"
	"fmt"
)

// DefaultBatchSize is the fixed batch size used by the indexer
// (backpressure: batches are embedded sequentially, never all at once).
const DefaultBatchSize = 64

// EmbedBatches embeds texts through m in fixed-size batches, applying
// the model's mode template to each text first. Results keep input
// order. onBatch, when non-nil, is invoked after each completed batch
// with the running and total counts, for progress reporting.
func EmbedBatches(ctx context.Context, m Model, texts []string, mode EmbedMode, batchSize int, onBatch func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+batchSize, len(texts))
		rendered := make([]string, end-start)
		for i, t := range texts[start:end] {
			rendered[i] = m.Render(mode, t)
		}

		vectors, err := m.Provider.Embed(ctx, rendered, mode)
		if err != nil {
			return nil, fmt.Errorf("model %s: batch at %d: %w", m.ID, start, err)
		}
		if len(vectors) != len(rendered) {
			return nil, fmt.Errorf("model %s: batch at %d: got %d vectors for %d texts", m.ID, start, len(vectors), len(rendered))
		}
		out = append(out, vectors...)

		if onBatch != nil {
			onBatch(end, len(texts))
		}
	}
	return out, nil
}
