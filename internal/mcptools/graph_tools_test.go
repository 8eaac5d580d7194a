package mcptools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

// graphFixture builds a small corpus where Alpha calls Beta and
// TestBeta covers Beta, plus the symbol graph over it.
func graphFixture(t *testing.T) *GraphHandle {
	t.Helper()
	c, err := corpus.Load(filepath.Join(t.TempDir(), "corpus.json"))
	require.NoError(t, err)
	c.SetFileChunks("a.go", []chunk.Chunk{{
		ID: "a.go:1:3", RelPath: "a.go", StartLine: 1, EndLine: 3,
		Symbol: "Alpha", Kind: chunk.KindFunction,
		Content: "func Alpha() {\n\tBeta()\n}",
	}})
	c.SetFileChunks("b.go", []chunk.Chunk{{
		ID: "b.go:1:3", RelPath: "b.go", StartLine: 1, EndLine: 3,
		Symbol: "Beta", Kind: chunk.KindFunction,
		Content: "func Beta() {\n\treturn\n}",
	}})
	c.SetFileChunks("b_test.go", []chunk.Chunk{{
		ID: "b_test.go:1:3", RelPath: "b_test.go", StartLine: 1, EndLine: 3,
		Symbol: "TestBeta", Kind: chunk.KindFunction,
		Content: "func TestBeta(t *testing.T) {\n\tBeta()\n}",
	}})
	return NewGraphHandle(symbolgraph.Build(c.AllChunks()), c)
}

func TestOverviewHandlerRollsUpGraph(t *testing.T) {
	handler := createOverviewHandler(graphFixture(t))
	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	res := decode[overviewResult](t, result)
	require.Equal(t, 3, res.Nodes)
	require.Equal(t, 3, res.Files)
	require.Equal(t, 3, res.ByKind["Function"])
	require.Greater(t, res.ByRelationship["Calls"], 0)
}

func TestExplainHandlerListsCallersAndCallees(t *testing.T) {
	handler := createExplainHandler(graphFixture(t))
	result, err := handler(context.Background(), callRequest(map[string]interface{}{
		"symbol": "Beta", "include_context": true,
	}))
	require.NoError(t, err)
	res := decode[explainResult](t, result)
	require.Len(t, res.Definitions, 1)
	require.Equal(t, "b.go", res.Definitions[0].File)
	require.Contains(t, res.Definitions[0].Content, "func Beta")

	var callerNames []string
	for _, c := range res.Callers {
		callerNames = append(callerNames, c.Name)
	}
	require.Contains(t, callerNames, "Alpha")
}

func TestExplainHandlerUnknownSymbolIsNotFound(t *testing.T) {
	handler := createExplainHandler(graphFixture(t))
	result, err := handler(context.Background(), callRequest(map[string]interface{}{"symbol": "Nope"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestImpactHandlerFindsCallersAndTests(t *testing.T) {
	handler := createImpactHandler(graphFixture(t))
	result, err := handler(context.Background(), callRequest(map[string]interface{}{"symbol": "Beta"}))
	require.NoError(t, err)
	res := decode[impactResult](t, result)

	names := make(map[string]int)
	for _, a := range res.Affected {
		names[a.Name] = a.Distance
	}
	require.Equal(t, 1, names["Alpha"], "direct caller is affected at distance 1")
	require.Contains(t, names, "TestBeta", "covering test is in the blast radius")
}

func TestTraceHandlerReturnsHops(t *testing.T) {
	handler := createTraceHandler(graphFixture(t))
	result, err := handler(context.Background(), callRequest(map[string]interface{}{
		"symbol": "Alpha", "to": "Beta",
	}))
	require.NoError(t, err)
	res := decode[traceResult](t, result)
	require.Len(t, res.Hops, 2)
	require.Equal(t, "Alpha", res.Hops[0].Name)
	require.Equal(t, "Beta", res.Hops[1].Name)
}

func TestTraceHandlerNoPathIsNotFound(t *testing.T) {
	handler := createTraceHandler(graphFixture(t))
	// Calls point Alpha -> Beta; there is no directed path back.
	result, err := handler(context.Background(), callRequest(map[string]interface{}{
		"symbol": "Beta", "to": "Alpha",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestGraphHandleCacheInvalidatedOnSetGraph(t *testing.T) {
	h := graphFixture(t)
	handler := createExplainHandler(h)
	_, err := handler(context.Background(), callRequest(map[string]interface{}{"symbol": "Beta"}))
	require.NoError(t, err)

	// Swap in an empty graph; the cached explain result must not survive.
	h.SetGraph(symbolgraph.Build(nil))
	result, err := handler(context.Background(), callRequest(map[string]interface{}{"symbol": "Beta"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}
