package mcptools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/capabilities"
	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/meaning"
)

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestCapabilitiesHandlerReflectsIndexedState(t *testing.T) {
	handler := createCapabilitiesHandler("0.1.0", func() bool { return true })
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	caps := decode[capabilities.Capabilities](t, result)
	require.Equal(t, "memory", caps.StartRoute.Args["intent"])
}

func TestHelpHandlerReturnsLegend(t *testing.T) {
	handler := createHelpHandler()
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	legend := decode[capabilities.Legend](t, result)
	require.NotEmpty(t, legend.Text)
	require.Len(t, legend.Fields, 4)
}

func TestMeaningPackHandlerFindsAnchors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Hi\n"), 0o644))
	handler := createMeaningPackHandler(dir)
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	pack := decode[meaning.Pack](t, result)
	require.NotEmpty(t, pack.Anchors)
}

func TestMeaningFocusHandlerRequiresQuery(t *testing.T) {
	handler := createMeaningFocusHandler(t.TempDir())
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestEvidenceFetchHandlerResolvesPointers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1\nline2\n"), 0o644))
	handler := createEvidenceFetchHandler(dir)
	args := map[string]interface{}{
		"pointers": []interface{}{
			map[string]interface{}{"file": "a.txt", "start_line": float64(1), "end_line": float64(2)},
		},
	}
	result, err := handler(context.Background(), callRequest(args))
	require.NoError(t, err)
	evidence := decode[[]meaning.Evidence](t, result)
	require.Len(t, evidence, 1)
	require.Contains(t, evidence[0].Content, "line1")
}

func TestListFilesHandlerPaginatesWithoutDuplicates(t *testing.T) {
	c, err := corpus.Load(filepath.Join(t.TempDir(), "corpus.json"))
	require.NoError(t, err)
	for _, rel := range []string{"c.go", "a.go", "b.go"} {
		c.SetFileChunks(rel, []chunk.Chunk{
			{ID: rel + ":1:1", RelPath: rel, StartLine: 1, EndLine: 1, Kind: chunk.KindFunction, Content: "func x() {}"},
		})
	}
	handler := createListFilesHandler(c)

	result, err := handler(context.Background(), callRequest(map[string]interface{}{
		"limit": float64(1), "max_chars": float64(20000),
	}))
	require.NoError(t, err)
	page := decode[listFilesResult](t, result)
	require.Equal(t, []string{"a.go"}, page.Files)
	require.Equal(t, 3, page.Total)
	require.True(t, page.Truncated)
	require.NotEmpty(t, page.Cursor)

	// Continuation carries only the cursor; page size is preserved in it.
	var seen []string
	seen = append(seen, page.Files...)
	for page.Cursor != "" {
		result, err = handler(context.Background(), callRequest(map[string]interface{}{"cursor": page.Cursor}))
		require.NoError(t, err)
		page = decode[listFilesResult](t, result)
		require.Len(t, page.Files, 1)
		seen = append(seen, page.Files...)
	}
	require.Equal(t, []string{"a.go", "b.go", "c.go"}, seen)
	require.False(t, page.Truncated)
}

func TestListFilesHandlerRejectsGarbageCursor(t *testing.T) {
	c, err := corpus.Load(filepath.Join(t.TempDir(), "corpus.json"))
	require.NoError(t, err)
	handler := createListFilesHandler(c)
	result, err := handler(context.Background(), callRequest(map[string]interface{}{"cursor": "!!not-base64!!"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestCompareSearchHandlerRequiresQueries(t *testing.T) {
	handler := createCompareSearchHandler(nil, nil)
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
}
