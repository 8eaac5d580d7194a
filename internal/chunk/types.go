// Package chunk implements C1, the AST-aware chunker (spec.md §4.1).
// It is pure: no I/O beyond the source buffer handed to it.
package chunk

import "fmt"

// Kind classifies the semantic role of a Chunk (spec.md §3).
type Kind string

const (
	KindFunction  Kind = "Function"
	KindMethod    Kind = "Method"
	KindClass     Kind = "Class"
	KindStruct    Kind = "Struct"
	KindEnum      Kind = "Enum"
	KindInterface Kind = "Interface"
	KindModule    Kind = "Module"
	KindVariable  Kind = "Variable"
	KindConstant  Kind = "Constant"
	KindBlock     Kind = "Block"
	KindDoc       Kind = "Doc"
	KindConfig    Kind = "Config"
)

// Chunk is the retrieval atom: an AST-aware unit of source with metadata.
type Chunk struct {
	// Identity = "<rel_path>:<start_line>:<end_line>" (spec.md §3).
	ID string `json:"id"`

	RelPath   string `json:"rel_path"`
	StartLine int    `json:"start_line"` // 1-based, inclusive
	EndLine   int    `json:"end_line"`   // 1-based, inclusive
	Content   string `json:"content"`    // verbatim

	Symbol        string   `json:"symbol,omitempty"`
	Kind          Kind     `json:"kind"`
	ParentScope   string   `json:"parent_scope,omitempty"`
	QualifiedName string   `json:"qualified_name,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Imports       []string `json:"imports,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	BundleTags    []string `json:"bundle_tags,omitempty"`
	RelatedHints  []string `json:"related_hints,omitempty"`

	// Diagnostic is set when this chunk was produced by the whole-file
	// parse-error fallback; windowed chunks carry none.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// MakeID computes the canonical identity for a chunk's location.
func MakeID(relPath string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d:%d", relPath, startLine, endLine)
}

// Options controls chunking behavior.
type Options struct {
	MaxFileBytes   int // files larger than this are skipped entirely
	MinChunkTokens int // chunks smaller than this may be merged with their sibling
	WindowLines    int // fallback fixed-size window, in lines
	WindowOverlap  int // fallback window overlap, in lines
}

// DefaultOptions mirrors the teacher's chunking defaults
// (internal/config.Config.Chunking) scaled to line-based windows.
func DefaultOptions() Options {
	return Options{
		MaxFileBytes:   1 << 20, // 1MiB
		MinChunkTokens: 20,
		WindowLines:    120,
		WindowOverlap:  20,
	}
}
