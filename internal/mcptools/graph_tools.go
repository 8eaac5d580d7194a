package mcptools

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/maypok86/otter"

	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

// maxGraphCacheWeight bounds the graph tools' rendered-result cache at
// roughly 8MB of response text.
const maxGraphCacheWeight = 8 << 20

// GraphHandle serves the overview/explain/impact/trace tools (spec.md
// §6.3) from the chunk-level symbol graph. It keeps a dominikbraun
// projection of the current graph for shortest-path queries and a
// weight-bounded cache of rendered results; both are discarded when a
// reindex swaps the graph in via SetGraph.
type GraphHandle struct {
	corpus *corpus.Corpus

	mu     sync.Mutex
	sg     *symbolgraph.Graph
	paths  graph.Graph[string, string]
	cache  otter.Cache[string, string]
}

// NewGraphHandle wraps the engine's symbol graph and corpus for the
// graph-backed tools.
func NewGraphHandle(sg *symbolgraph.Graph, c *corpus.Corpus) *GraphHandle {
	cache, err := otter.MustBuilder[string, string](maxGraphCacheWeight).
		Cost(func(key string, value string) uint32 {
			return uint32(len(key) + len(value))
		}).
		Build()
	if err != nil {
		// Capacity is a positive constant; the builder cannot reject it.
		panic(fmt.Sprintf("graph cache: %v", err))
	}
	return &GraphHandle{corpus: c, sg: sg, cache: cache}
}

// SetGraph replaces the handle's graph after a reindex, dropping the
// path projection and every cached result.
func (h *GraphHandle) SetGraph(sg *symbolgraph.Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sg = sg
	h.paths = nil
	h.cache.Clear()
}

// nodeKey gives each arena node a stable string identity for the path
// projection. Arena index disambiguates same-named symbols.
func nodeKey(n symbolgraph.Node, idx int) string {
	return n.Symbol.File + ":" + n.Symbol.QualifiedName + "#" + strconv.Itoa(idx)
}

// pathGraph lazily projects the symbol graph's arena into a
// dominikbraun directed graph so trace can reuse its ShortestPath.
// Caller must hold h.mu.
func (h *GraphHandle) pathGraph() graph.Graph[string, string] {
	if h.paths != nil {
		return h.paths
	}
	g := graph.New(graph.StringHash, graph.Directed())
	nodes := h.sg.Nodes()
	for i, n := range nodes {
		_ = g.AddVertex(nodeKey(n, i))
	}
	for _, e := range h.sg.Edges() {
		_ = g.AddEdge(nodeKey(nodes[e.From], e.From), nodeKey(nodes[e.To], e.To))
	}
	h.paths = g
	return g
}

// cached runs compute under the handle's result cache.
func (h *GraphHandle) cached(key string, compute func() (string, error)) (string, error) {
	if v, ok := h.cache.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return "", err
	}
	h.cache.Set(key, v)
	return v, nil
}

// symbolRef is one node in a graph tool response.
type symbolRef struct {
	Name      string `json:"name"`
	Qualified string `json:"qualified_name,omitempty"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
}

func (h *GraphHandle) ref(n symbolgraph.Node, includeContext bool) symbolRef {
	r := symbolRef{
		Name: n.Symbol.Name, File: n.Symbol.File,
		Line: n.Symbol.StartLine, Kind: string(n.Symbol.Kind),
	}
	if n.Symbol.QualifiedName != n.Symbol.Name {
		r.Qualified = n.Symbol.QualifiedName
	}
	if includeContext {
		if ch, ok := h.corpus.GetChunk(n.ChunkID); ok {
			r.Content = ch.Content
		}
	}
	return r
}

// overviewResult is the overview tool's rollup of the symbol graph.
type overviewResult struct {
	Nodes          int            `json:"nodes"`
	Edges          int            `json:"edges"`
	ByKind         map[string]int `json:"by_kind"`
	ByRelationship map[string]int `json:"by_relationship"`
	Files          int            `json:"files"`
}

// AddOverviewTool registers the overview tool: graph-wide node/edge
// counts for a quick orientation pass (spec.md §6.3).
func AddOverviewTool(s *server.MCPServer, h *GraphHandle) {
	tool := mcp.NewTool("overview",
		mcp.WithDescription("Summarize the project's symbol graph: node and edge counts by kind and relationship."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createOverviewHandler(h))
}

func createOverviewHandler(h *GraphHandle) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		res := overviewResult{
			Nodes:          h.sg.NodeCount(),
			Edges:          h.sg.EdgeCount(),
			ByKind:         map[string]int{},
			ByRelationship: map[string]int{},
		}
		files := map[string]bool{}
		for _, n := range h.sg.Nodes() {
			res.ByKind[string(n.Symbol.Kind)]++
			files[n.Symbol.File] = true
		}
		for _, e := range h.sg.Edges() {
			res.ByRelationship[string(e.Rel)]++
		}
		res.Files = len(files)
		return textResult(res)
	}
}

// explainResult bundles a symbol's definitions, callers and callees
// (spec.md §6.3 "graph-backed summaries").
type explainResult struct {
	Symbol      string      `json:"symbol"`
	Definitions []symbolRef `json:"definitions"`
	Callers     []symbolRef `json:"callers,omitempty"`
	Callees     []symbolRef `json:"callees,omitempty"`
}

// AddExplainTool registers the explain tool: where a symbol is defined
// and its direct callers and callees (spec.md §6.3).
func AddExplainTool(s *server.MCPServer, h *GraphHandle) {
	tool := mcp.NewTool("explain",
		mcp.WithDescription("Explain a symbol by its definitions and its direct callers and callees in the symbol graph."),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("symbol name or qualified name")),
		mcp.WithBoolean("include_context", mcp.Description("include source snippets for each result")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createExplainHandler(h))
}

func createExplainHandler(h *GraphHandle) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		symbol := argString(args, "symbol")
		if symbol == "" {
			return mcp.NewToolResultError("symbol parameter is required"), nil
		}
		includeContext, _ := argBool(args, "include_context")

		h.mu.Lock()
		defer h.mu.Unlock()
		out, err := h.cached("explain:"+symbol+":"+strconv.FormatBool(includeContext), func() (string, error) {
			defs := h.sg.NodesByName(symbol)
			if len(defs) == 0 {
				return "", fmt.Errorf("not_found: symbol %q is not in the graph", symbol)
			}
			res := explainResult{Symbol: symbol}
			for _, d := range defs {
				res.Definitions = append(res.Definitions, h.ref(d, includeContext))
				for _, c := range h.sg.Callers(d) {
					res.Callers = append(res.Callers, h.ref(c, includeContext))
				}
				for _, c := range h.sg.Callees(d) {
					res.Callees = append(res.Callees, h.ref(c, includeContext))
				}
			}
			return marshalText(res)
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// impactEntry is one symbol affected by a change, with its distance
// from the changed symbol.
type impactEntry struct {
	symbolRef
	Distance int `json:"distance"`
}

type impactResult struct {
	Symbol   string        `json:"symbol"`
	Affected []impactEntry `json:"affected"`
}

// AddImpactTool registers the impact tool: the blast radius of changing
// a symbol — its transitive callers plus anything extending or testing
// it, breadth-first with a visited set (spec.md §6.3, §9).
func AddImpactTool(s *server.MCPServer, h *GraphHandle) {
	tool := mcp.NewTool("impact",
		mcp.WithDescription("Analyze the blast radius of changing a symbol: transitive callers, subtypes, and covering tests."),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("symbol to analyze")),
		mcp.WithNumber("depth", mcp.Description("traversal depth (default 3)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createImpactHandler(h))
}

func createImpactHandler(h *GraphHandle) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		symbol := argString(args, "symbol")
		if symbol == "" {
			return mcp.NewToolResultError("symbol parameter is required"), nil
		}
		depth, _ := argInt(args, "depth")
		if depth <= 0 {
			depth = 3
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		out, err := h.cached("impact:"+symbol+":"+strconv.Itoa(depth), func() (string, error) {
			defs := h.sg.NodesByName(symbol)
			if len(defs) == 0 {
				return "", fmt.Errorf("not_found: symbol %q is not in the graph", symbol)
			}
			res := impactResult{Symbol: symbol}
			seen := make(map[string]bool)
			for _, d := range defs {
				seen[d.ChunkID+"#"+d.Symbol.Name] = true
			}
			// Blast radius: who calls, extends, or tests the symbol —
			// breadth-first over incoming dependency directions only.
			frontier := defs
			for dist := 1; dist <= depth && len(frontier) > 0; dist++ {
				var next []symbolgraph.Node
				for _, n := range frontier {
					var affected []symbolgraph.Node
					affected = append(affected, h.sg.Callers(n)...)
					affected = append(affected, h.sg.ExtendedBy(n)...)
					affected = append(affected, h.sg.Tests(n)...)
					for _, a := range affected {
						key := a.ChunkID + "#" + a.Symbol.Name
						if seen[key] {
							continue
						}
						seen[key] = true
						res.Affected = append(res.Affected, impactEntry{symbolRef: h.ref(a, false), Distance: dist})
						next = append(next, a)
					}
				}
				frontier = next
			}
			return marshalText(res)
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

type traceResult struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	Hops []symbolRef `json:"hops"`
}

// AddTraceTool registers the trace tool: the shortest path between two
// symbols, including intermediate hops (spec.md §6.3).
func AddTraceTool(s *server.MCPServer, h *GraphHandle) {
	tool := mcp.NewTool("trace",
		mcp.WithDescription("Trace the shortest relationship path from one symbol to another in the symbol graph."),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("source symbol")),
		mcp.WithString("to", mcp.Required(), mcp.Description("destination symbol")),
		mcp.WithBoolean("include_context", mcp.Description("include source snippets for each hop")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createTraceHandler(h))
}

func createTraceHandler(h *GraphHandle) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		from := argString(args, "symbol")
		to := argString(args, "to")
		if from == "" || to == "" {
			return mcp.NewToolResultError("symbol and to parameters are required"), nil
		}
		includeContext, _ := argBool(args, "include_context")

		h.mu.Lock()
		defer h.mu.Unlock()
		nodes := h.sg.Nodes()
		byKey := make(map[string]symbolgraph.Node, len(nodes))
		for i, n := range nodes {
			byKey[nodeKey(n, i)] = n
		}
		srcKeys := h.keysForName(from)
		dstKeys := h.keysForName(to)
		if len(srcKeys) == 0 || len(dstKeys) == 0 {
			return mcp.NewToolResultError("not_found: both symbols must be in the graph"), nil
		}

		pg := h.pathGraph()
		for _, src := range srcKeys {
			for _, dst := range dstKeys {
				path, err := graph.ShortestPath(pg, src, dst)
				if err != nil || len(path) == 0 {
					continue
				}
				res := traceResult{From: from, To: to}
				for _, key := range path {
					res.Hops = append(res.Hops, h.ref(byKey[key], includeContext))
				}
				return textResult(res)
			}
		}
		return mcp.NewToolResultError("not_found: no path from " + from + " to " + to), nil
	}
}

// keysForName returns the path-projection keys of every node matching
// name. Caller must hold h.mu.
func (h *GraphHandle) keysForName(name string) []string {
	var keys []string
	for i, n := range h.sg.Nodes() {
		if n.Symbol.Name == name || n.Symbol.QualifiedName == name {
			keys = append(keys, nodeKey(n, i))
		}
	}
	return keys
}
