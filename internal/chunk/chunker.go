package chunk

import (
	"errors"
	"unicode/utf8"
)

var errParseFailed = errors.New("chunk: parse failed")

// Chunker splits one file's source into an ordered sequence of Chunks
// (spec.md §4.1). It is stateless and safe for concurrent use.
type Chunker struct {
	opts Options
}

// New creates a Chunker with the given options.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts}
}

// Chunk implements C1's chunk(source_bytes, rel_path) operation.
// It never returns an error for a parseable-but-unsupported file: it
// degrades to windowed chunking instead. A genuine parse error on a
// supported language degrades to a single whole-file Module chunk
// carrying a diagnostic, per spec.md §4.1.
func (c *Chunker) Chunk(source []byte, relPath string) ([]Chunk, error) {
	if len(source) > c.opts.MaxFileBytes {
		return nil, nil // oversize: skipped entirely
	}
	if !utf8.Valid(source) {
		return nil, nil // binary: skipped entirely
	}

	lang := aliasLanguage(detectLanguage(relPath))

	switch lang {
	case "go":
		chunks, err := chunkGo(source, relPath)
		if err != nil {
			return c.wholeFileFallback(source, relPath, err), nil
		}
		for i := range chunks {
			chunks[i].Imports = goImports(source, relPath)
		}
		return c.mergeSmall(chunks), nil

	case "doc":
		return chunkDoc(source, relPath, c.opts), nil

	case "config":
		return chunkConfig(source, relPath, c.opts), nil
	}

	if spec, ok := languageTable[lang]; ok {
		chunks, err := chunkTreeSitter(spec, source, relPath)
		if err != nil {
			return c.wholeFileFallback(source, relPath, err), nil
		}
		return c.mergeSmall(chunks), nil
	}

	// Unsupported language: fixed-size windowed chunking with overlap.
	return chunkWindowed(source, relPath, c.opts), nil
}

func (c *Chunker) wholeFileFallback(source []byte, relPath string, cause error) []Chunk {
	lineCount := 1
	for _, b := range source {
		if b == '\n' {
			lineCount++
		}
	}
	return []Chunk{{
		ID:         MakeID(relPath, 1, lineCount),
		RelPath:    relPath,
		StartLine:  1,
		EndLine:    lineCount,
		Content:    string(source),
		Kind:       KindModule,
		Diagnostic: "parse_error: " + cause.Error(),
	}}
}

// mergeSmall merges a chunk below MinChunkTokens into the following
// sibling, per spec.md §4.1.
func (c *Chunker) mergeSmall(chunks []Chunk) []Chunk {
	if c.opts.MinChunkTokens <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]Chunk, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		cur := chunks[i]
		if estimateTokens(cur.Content) < c.opts.MinChunkTokens && i+1 < len(chunks) {
			next := chunks[i+1]
			next.Content = cur.Content + "\n" + next.Content
			next.StartLine = cur.StartLine
			next.ID = MakeID(next.RelPath, next.StartLine, next.EndLine)
			chunks[i+1] = next
			continue
		}
		out = append(out, cur)
	}
	return out
}
