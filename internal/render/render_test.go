package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderBasicEnvelope(t *testing.T) {
	env := Envelope{
		Answer: "found 2 matches",
		Notes:  []string{"index is fresh"},
		Refs: []Ref{
			{File: "a.go", Line: 10, Label: "match", Block: "func A() {}"},
		},
		Cursor: "abc123",
	}
	res := Render(env, 0)
	require.False(t, res.Truncated)
	require.Contains(t, res.Text, "[CONTENT]\n")
	require.Contains(t, res.Text, "A: found 2 matches\n")
	require.Contains(t, res.Text, "N: index is fresh\n")
	require.Contains(t, res.Text, "R: a.go:10 [match]\n")
	require.Contains(t, res.Text, " func A() {}\n")
	require.Contains(t, res.Text, "M: abc123\n")
}

func TestRenderEscapesReservedPrefixes(t *testing.T) {
	env := Envelope{Answer: "N: this looks like a note but isn't"}
	res := Render(env, 0)
	require.Contains(t, res.Text, "A:  N: this looks like a note but isn't\n")
}

func TestRenderEscapesBlockLines(t *testing.T) {
	env := Envelope{Refs: []Ref{
		{File: "a.go", Block: "R: not actually a ref line\nplain line"},
	}}
	res := Render(env, 0)
	require.Contains(t, res.Text, "  R: not actually a ref line\n")
	require.Contains(t, res.Text, " plain line\n")
}

func TestRenderTruncatesAtLineBoundary(t *testing.T) {
	env := Envelope{
		Answer: "short",
		Refs: []Ref{
			{File: "a.go", Line: 1, Block: "line one\nline two\nline three"},
		},
	}
	full := Render(env, 0)
	budget := len(full.Text) - 10
	res := Render(env, budget)
	require.True(t, res.Truncated)
	require.LessOrEqual(t, len([]rune(res.Text)), budget)
	require.True(t, strings.HasSuffix(res.Text, "\n") || res.Text == "")
}

func TestRenderUnboundedWhenMaxCharsNonPositive(t *testing.T) {
	env := Envelope{Answer: strings.Repeat("x", 10000)}
	res := Render(env, -1)
	require.False(t, res.Truncated)
	require.Greater(t, res.UsedChars, 9000)
}
