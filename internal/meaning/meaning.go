// Package meaning implements C14, the evidence-first meaning/anchor
// layer: compact anchor documents backed by verbatim Evidence Pointers,
// with stale-hash detection on fetch (spec.md §4.14).
package meaning

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/cortexlens/contextd/internal/apperr"
)

// AnchorKind classifies what an anchor represents (spec.md §4.14).
type AnchorKind string

const (
	KindCanon      AnchorKind = "canon"
	KindArtifact   AnchorKind = "artifact"
	KindEntrypoint AnchorKind = "entrypoint"
	KindContract   AnchorKind = "contract"
)

// Pointer is a verbatim-range reference into a file (spec.md §4.14).
type Pointer struct {
	File       string `json:"file"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	SourceHash string `json:"source_hash,omitempty"`
}

// Anchor is one entry in a meaning pack.
type Anchor struct {
	Kind     AnchorKind `json:"kind"`
	Title    string     `json:"title"`
	Pointers []Pointer  `json:"pointers"`
}

// Pack is the meaning document for a project or a focused sub-area.
type Pack struct {
	Anchors []Anchor `json:"anchors"`
}

// Evidence is one fetched verbatim range, with staleness reported when
// the file's current content hash no longer matches the pointer's
// recorded hash (spec.md §4.14).
type Evidence struct {
	Pointer Pointer `json:"pointer"`
	Content string  `json:"content"`
	Stale   bool    `json:"stale"`
}

// entrypointCandidates are filenames that commonly mark a project's
// primary entry surface. BuildPack does not read this list; it anchors
// only a root-level main.go.
var entrypointCandidates = []string{"main.go", "cmd", "README.md", "AGENTS.md"}

// BuildPack derives a meaning pack for root from filesystem signals:
// canonical docs as "canon" anchors, build/module manifests as
// "artifact" anchors, and a root-level main.go as an "entrypoint" anchor
// (spec.md §4.14); cmd/* is not examined. This is a heuristic document,
// not a query — Focus below narrows it by anchor title.
func BuildPack(root string) Pack {
	var anchors []Anchor
	for _, name := range []string{"README.md", "AGENTS.md"} {
		if p := filePointer(root, name); p != nil {
			anchors = append(anchors, Anchor{Kind: KindCanon, Title: name, Pointers: []Pointer{*p}})
		}
	}
	for _, name := range []string{"go.mod", "package.json", "Cargo.toml", "pyproject.toml"} {
		if p := filePointer(root, name); p != nil {
			anchors = append(anchors, Anchor{Kind: KindArtifact, Title: name, Pointers: []Pointer{*p}})
		}
	}
	if p := filePointer(root, "main.go"); p != nil {
		anchors = append(anchors, Anchor{Kind: KindEntrypoint, Title: "main.go", Pointers: []Pointer{*p}})
	}
	return Pack{Anchors: anchors}
}

// Focus narrows BuildPack's result to anchors whose title contains
// query, case-insensitively (spec.md §4.14 "focus area").
func Focus(root, query string) Pack {
	full := BuildPack(root)
	if query == "" {
		return full
	}
	q := strings.ToLower(query)
	var out []Anchor
	for _, a := range full.Anchors {
		if strings.Contains(strings.ToLower(a.Title), q) {
			out = append(out, a)
		}
	}
	return Pack{Anchors: out}
}

func filePointer(root, rel string) *Pointer {
	abs := filepath.Join(root, rel)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil
	}
	lines := strings.Count(string(data), "\n") + 1
	return &Pointer{File: rel, StartLine: 1, EndLine: lines, SourceHash: hashContent(data)}
}

func hashContent(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fetch resolves pointers to verbatim content, marking Stale when a
// file's live hash diverges from the pointer's recorded source_hash.
// In strictHash mode, any mismatch is a hard apperr.CodeInvalidRequest
// error instead of a stale flag (spec.md §4.14 "strict-hash mode").
func Fetch(root string, pointers []Pointer, strictHash bool) ([]Evidence, error) {
	out := make([]Evidence, 0, len(pointers))
	for _, p := range pointers {
		abs := filepath.Join(root, p.File)
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, apperr.New(apperr.CodeNotFound, "evidence file not found: %s", p.File)
		}
		lines := strings.Split(string(data), "\n")
		start := clampLine(p.StartLine, len(lines))
		end := clampLine(p.EndLine, len(lines))
		if end < start {
			end = start
		}
		content := strings.Join(lines[start-1:end], "\n")

		stale := false
		if p.SourceHash != "" {
			if current := hashContent(data); current != p.SourceHash {
				stale = true
				if strictHash {
					return nil, apperr.New(apperr.CodeInvalidRequest, "evidence for %s is stale: source_hash mismatch", p.File)
				}
			}
		}
		out = append(out, Evidence{Pointer: p, Content: content, Stale: stale})
	}
	return out, nil
}

func clampLine(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
