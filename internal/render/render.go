// Package render implements C12, the deterministic `.context` text
// envelope and its character-budget enforcement (spec.md §4.12).
package render

import (
	"strconv"
	"strings"
)

// reservedPrefixes must never appear unescaped at the start of a content
// line, since a reader distinguishes envelope structure from payload by
// line prefix alone.
var reservedPrefixes = []string{"[LEGEND]", "[CONTENT]", "A:", "N:", "R:", "M:"}

// Ref is one `R:` section: a location plus a verbatim quoted block.
type Ref struct {
	File  string
	Line  int
	Label string
	Block string // verbatim; rendered as space-quoted lines beneath the R: line
}

// Envelope is the structured form rendered to `.context` text.
type Envelope struct {
	Answer string
	Notes  []string
	Refs   []Ref
	Cursor string // non-empty when a continuation exists
}

// Result is what Render produces, carrying enough to let a caller decide
// whether to surface next_cursor/truncation in structured metadata too.
type Result struct {
	Text      string
	UsedChars int
	Truncated bool
}

// Render serializes env within maxChars Unicode scalar values, truncating
// at a character boundary and recording truncation if the full envelope
// doesn't fit (spec.md §4.12). maxChars <= 0 means unbounded.
func Render(env Envelope, maxChars int) Result {
	var b strings.Builder
	b.WriteString("[CONTENT]\n")
	if env.Answer != "" {
		b.WriteString("A: ")
		b.WriteString(escapeLine(env.Answer))
		b.WriteString("\n")
	}
	for _, n := range env.Notes {
		b.WriteString("N: ")
		b.WriteString(escapeLine(n))
		b.WriteString("\n")
	}
	for _, r := range env.Refs {
		b.WriteString(renderRef(r))
	}
	if env.Cursor != "" {
		b.WriteString("M: ")
		b.WriteString(escapeLine(env.Cursor))
		b.WriteString("\n")
	}

	full := b.String()
	runes := []rune(full)
	if maxChars <= 0 || len(runes) <= maxChars {
		return Result{Text: full, UsedChars: len(runes), Truncated: false}
	}

	truncated := truncateAtLineBoundary(runes, maxChars)
	return Result{Text: truncated, UsedChars: len([]rune(truncated)), Truncated: true}
}

func renderRef(r Ref) string {
	var b strings.Builder
	b.WriteString("R: ")
	b.WriteString(r.File)
	if r.Line > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(r.Line))
	}
	if r.Label != "" {
		b.WriteString(" [")
		b.WriteString(r.Label)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, line := range strings.Split(r.Block, "\n") {
		b.WriteString(" ")
		b.WriteString(escapeLine(line))
		b.WriteString("\n")
	}
	return b.String()
}

// escapeLine prefixes a single space if line would otherwise be
// misread as envelope structure (spec.md §4.12 escaping rule). This is
// applied to payload text, not to the structural "A: "/"R: " prefixes
// this package itself writes.
func escapeLine(line string) string {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(line, p) {
			return " " + line
		}
	}
	return line
}

// truncateAtLineBoundary cuts runes to at most maxChars, backing up to
// the last newline so a reader never sees a partial structural line.
func truncateAtLineBoundary(runes []rune, maxChars int) string {
	if maxChars >= len(runes) {
		return string(runes)
	}
	cut := runes[:maxChars]
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == '\n' {
			return string(cut[:i+1])
		}
	}
	return string(cut)
}

