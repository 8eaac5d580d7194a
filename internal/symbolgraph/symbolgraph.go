// Package symbolgraph implements C5, the directed symbol graph built
// from the chunk corpus (spec.md §3 "Graph", §4.5). Instead of
// resolving references via per-language type information, it derives
// Calls/Uses/Imports/Contains/Extends/TestedBy edges from chunk
// metadata and lightweight identifier scanning, the way a
// retrieval-oriented index can afford to for any of C1's seven
// tree-sitter languages plus Go.
//
// Nodes live in an arena slice addressed by integer index and every
// traversal is iterative with an explicit visited set (spec.md §9
// "cyclic relationships"). This one graph backs both context_pack's
// related-chunk assembly and the overview/explain/impact/trace tools
// (internal/mcptools/graph_tools.go).
package symbolgraph

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cortexlens/contextd/internal/chunk"
)

// Relationship is an edge kind (spec.md §3).
type Relationship string

const (
	RelCalls    Relationship = "Calls"
	RelUses     Relationship = "Uses"
	RelImports  Relationship = "Imports"
	RelContains Relationship = "Contains"
	RelExtends  Relationship = "Extends"
	RelTestedBy Relationship = "TestedBy"
)

// relationshipPriority orders relationships for ranking related nodes
// (spec.md §4.9: "rank by relationship priority").
var relationshipPriority = map[Relationship]int{
	RelContains: 0,
	RelCalls:    1,
	RelUses:     2,
	RelImports:  3,
	RelExtends:  4,
	RelTestedBy: 5,
}

// Priority returns rel's rank for sorting (lower sorts first).
func Priority(rel Relationship) int {
	if p, ok := relationshipPriority[rel]; ok {
		return p
	}
	return len(relationshipPriority)
}

// Symbol identifies a code entity (spec.md §3 "Graph" node payload).
type Symbol struct {
	Name          string
	QualifiedName string
	File          string
	StartLine     int
	EndLine       int
	Kind          chunk.Kind
}

// Node is a symbol plus the chunk it was extracted from.
type Node struct {
	Symbol  Symbol
	ChunkID string
}

// Edge is a weighted directed relationship between two node indices.
type Edge struct {
	From   int
	To     int
	Rel    Relationship
	Weight float64
}

// RelatedNode is one result of a related_nodes traversal.
type RelatedNode struct {
	Node     Node
	Distance int
	Path     []Relationship
}

// Graph is the arena-backed symbol graph: nodes live in a slice and are
// referenced by integer index, so cycles (common in caller/callee
// relationships) never require owning references (spec.md §9).
type Graph struct {
	nodes []Node
	edges []Edge

	byName    map[string][]int // name or qualified name -> node indices, insertion order
	byChunkID map[string][]int
	outEdges  map[int][]int // node idx -> edge indices starting there
	inEdges   map[int][]int // node idx -> edge indices ending there
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byName:    make(map[string][]int),
		byChunkID: make(map[string][]int),
		outEdges:  make(map[int][]int),
		inEdges:   make(map[int][]int),
	}
}

// Build constructs a graph from the corpus's current chunk set. Traversal
// and edge emission are entirely deterministic given the same (sorted)
// chunk order (spec.md §4.5 "Determinism").
func Build(chunks []chunk.Chunk) *Graph {
	g := New()

	sorted := make([]chunk.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RelPath != sorted[j].RelPath {
			return sorted[i].RelPath < sorted[j].RelPath
		}
		return sorted[i].StartLine < sorted[j].StartLine
	})

	for _, ch := range sorted {
		if ch.Symbol == "" {
			continue
		}
		g.addNode(ch)
	}

	for _, ch := range sorted {
		if ch.Symbol == "" {
			continue
		}
		g.wireContains(ch)
		g.wireImports(ch)
		g.wireExtends(ch)
		g.wireTestedBy(ch)
	}
	// Calls/Uses need every node registered first (a callee can be defined
	// after its caller in file order), so scan content in a second pass.
	for _, ch := range sorted {
		if ch.Symbol == "" {
			continue
		}
		g.wireCallsAndUses(ch)
	}
	return g
}

func (g *Graph) addNode(ch chunk.Chunk) int {
	idx := len(g.nodes)
	qn := ch.QualifiedName
	if qn == "" {
		qn = ch.Symbol
	}
	n := Node{
		Symbol: Symbol{
			Name:          ch.Symbol,
			QualifiedName: qn,
			File:          ch.RelPath,
			StartLine:     ch.StartLine,
			EndLine:       ch.EndLine,
			Kind:          ch.Kind,
		},
		ChunkID: ch.ID,
	}
	g.nodes = append(g.nodes, n)
	g.byName[ch.Symbol] = append(g.byName[ch.Symbol], idx)
	if qn != ch.Symbol {
		g.byName[qn] = append(g.byName[qn], idx)
	}
	g.byChunkID[ch.ID] = append(g.byChunkID[ch.ID], idx)
	return idx
}

func (g *Graph) addEdge(from, to int, rel Relationship, weight float64) {
	if from == to {
		return
	}
	idx := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Rel: rel, Weight: weight})
	g.outEdges[from] = append(g.outEdges[from], idx)
	g.inEdges[to] = append(g.inEdges[to], idx)
}

// wireContains links a method/member to its enclosing scope (spec.md
// §4.1 "parent_scope"): every node whose chunk declares a ParentScope
// gets a Contains edge from the node matching that scope.
func (g *Graph) wireContains(ch chunk.Chunk) {
	if ch.ParentScope == "" {
		return
	}
	childIdxs := g.byChunkID[ch.ID]
	parentIdxs, ok := g.byName[ch.ParentScope]
	if !ok {
		return
	}
	for _, p := range parentIdxs {
		for _, c := range childIdxs {
			g.addEdge(p, c, RelContains, 1.0)
		}
	}
}

// wireImports links a chunk's primary symbol to any node defined in a
// file matching one of its Imports entries (by path suffix, since
// import strings rarely match rel_path verbatim across languages).
func (g *Graph) wireImports(ch chunk.Chunk) {
	if len(ch.Imports) == 0 {
		return
	}
	fromIdxs := g.byChunkID[ch.ID]
	if len(fromIdxs) == 0 {
		return
	}
	for _, imp := range ch.Imports {
		tail := lastPathSegment(imp)
		if tail == "" {
			continue
		}
		for idx, n := range g.nodes {
			if n.Symbol.File == ch.RelPath {
				continue
			}
			if strings.Contains(n.Symbol.File, tail) {
				for _, from := range fromIdxs {
					g.addEdge(from, idx, RelImports, 1.0)
				}
			}
		}
	}
}

func lastPathSegment(p string) string {
	p = strings.Trim(p, "\"'")
	p = strings.ReplaceAll(p, "::", "/")
	p = strings.ReplaceAll(p, ".", "/")
	parts := strings.Split(p, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

var extendsPattern = regexp.MustCompile(`(?:extends|implements|:\s*public|<|\(|,)\s*([A-Za-z_][A-Za-z0-9_]*)`)

// wireExtends scans a class/struct/interface's header line for common
// inheritance syntax across the pack's languages (Python/Java/TS
// "extends"/"implements", Ruby/C++ "< Base"/": public Base").
func (g *Graph) wireExtends(ch chunk.Chunk) {
	if ch.Kind != chunk.KindClass && ch.Kind != chunk.KindStruct && ch.Kind != chunk.KindInterface {
		return
	}
	header := firstLine(ch.Content)
	fromIdxs := g.byChunkID[ch.ID]
	matches := extendsPattern.FindAllStringSubmatch(header, -1)
	for _, m := range matches {
		name := m[1]
		if name == ch.Symbol {
			continue
		}
		for _, toIdx := range g.byName[name] {
			for _, from := range fromIdxs {
				g.addEdge(from, toIdx, RelExtends, 1.0)
			}
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// isTestChunk reports whether ch looks like test code, by path or name
// convention shared across the pack's languages.
func isTestChunk(ch chunk.Chunk) bool {
	lower := strings.ToLower(ch.RelPath)
	name := strings.ToLower(ch.Symbol)
	return strings.Contains(lower, "test") || strings.Contains(lower, "_spec") ||
		strings.HasPrefix(name, "test") || strings.HasSuffix(name, "test")
}

// wireTestedBy links a production symbol to a test chunk that mentions
// it by name (spec.md §3 edge kind TestedBy).
func (g *Graph) wireTestedBy(ch chunk.Chunk) {
	if !isTestChunk(ch) {
		return
	}
	testIdxs := g.byChunkID[ch.ID]
	seen := make(map[int]bool)
	for _, ident := range identPattern.FindAllString(ch.Content, -1) {
		if ident == ch.Symbol {
			continue
		}
		for _, toIdx := range g.byName[ident] {
			if isTestChunk(chunkOf(g, toIdx)) || seen[toIdx] {
				continue
			}
			seen[toIdx] = true
			for _, from := range testIdxs {
				g.addEdge(toIdx, from, RelTestedBy, 1.0)
			}
		}
	}
}

func chunkOf(g *Graph, idx int) chunk.Chunk {
	n := g.nodes[idx]
	return chunk.Chunk{RelPath: n.Symbol.File, Symbol: n.Symbol.Name}
}

// wireCallsAndUses scans a chunk's body for identifiers matching other
// known symbols: function/method names become Calls, type-shaped names
// (Class/Struct/Interface/Enum) become Uses. This is a heuristic
// cross-reference, not a type-resolved call graph — adequate for the
// "related chunks" ranking C9 needs, not for exhaustive impact analysis.
func (g *Graph) wireCallsAndUses(ch chunk.Chunk) {
	fromIdxs := g.byChunkID[ch.ID]
	if len(fromIdxs) == 0 {
		return
	}
	seen := make(map[int]Relationship)
	for _, ident := range identPattern.FindAllString(ch.Content, -1) {
		if ident == ch.Symbol {
			continue
		}
		for _, toIdx := range g.byName[ident] {
			if toIdx == fromIdxs[0] {
				continue
			}
			target := g.nodes[toIdx]
			var rel Relationship
			switch target.Symbol.Kind {
			case chunk.KindFunction, chunk.KindMethod:
				rel = RelCalls
			case chunk.KindClass, chunk.KindStruct, chunk.KindInterface, chunk.KindEnum:
				rel = RelUses
			default:
				continue
			}
			if seen[toIdx] == rel {
				continue
			}
			seen[toIdx] = rel
			for _, from := range fromIdxs {
				g.addEdge(from, toIdx, rel, 1.0)
			}
		}
	}
}

// NodeByChunkID returns the nodes extracted from chunkID, if any.
func (g *Graph) NodeByChunkID(chunkID string) []Node {
	idxs := g.byChunkID[chunkID]
	out := make([]Node, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.nodes[i])
	}
	return out
}

// NodesByName returns nodes matching name or qualified name exactly.
func (g *Graph) NodesByName(name string) []Node {
	idxs := g.byName[name]
	out := make([]Node, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.nodes[i])
	}
	return out
}

// Callees returns the nodes node calls, in insertion order.
func (g *Graph) Callees(node Node) []Node { return g.neighbors(node, RelCalls, true) }

// Callers returns the nodes that call node, in insertion order.
func (g *Graph) Callers(node Node) []Node { return g.neighbors(node, RelCalls, false) }

// Dependencies returns the nodes node imports.
func (g *Graph) Dependencies(node Node) []Node { return g.neighbors(node, RelImports, true) }

// ExtendedBy returns the nodes that extend or implement node.
func (g *Graph) ExtendedBy(node Node) []Node { return g.neighbors(node, RelExtends, false) }

// Tests returns the test nodes covering node.
func (g *Graph) Tests(node Node) []Node { return g.neighbors(node, RelTestedBy, true) }

func (g *Graph) neighbors(node Node, rel Relationship, outgoing bool) []Node {
	idx := g.indexOf(node)
	if idx < 0 {
		return nil
	}
	var edgeIdxs []int
	if outgoing {
		edgeIdxs = g.outEdges[idx]
	} else {
		edgeIdxs = g.inEdges[idx]
	}
	var out []Node
	for _, ei := range edgeIdxs {
		e := g.edges[ei]
		if e.Rel != rel {
			continue
		}
		if outgoing {
			out = append(out, g.nodes[e.To])
		} else {
			out = append(out, g.nodes[e.From])
		}
	}
	return out
}

func (g *Graph) indexOf(node Node) int {
	for _, i := range g.byChunkID[node.ChunkID] {
		if g.nodes[i].Symbol.Name == node.Symbol.Name {
			return i
		}
	}
	return -1
}

// RelatedNodes runs a breadth-first search (no recursion, explicit
// visited set per spec.md §9) over both edge directions out to maxDepth,
// returning neighbors ordered by relationship priority then distance.
func (g *Graph) RelatedNodes(node Node, maxDepth int) []RelatedNode {
	start := g.indexOf(node)
	if start < 0 || maxDepth <= 0 {
		return nil
	}

	type queued struct {
		idx  int
		dist int
		path []Relationship
	}
	visited := map[int]bool{start: true}
	queue := []queued{{idx: start, dist: 0}}
	var results []RelatedNode

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= maxDepth {
			continue
		}
		for _, ei := range g.outEdges[cur.idx] {
			e := g.edges[ei]
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			path := append(append([]Relationship{}, cur.path...), e.Rel)
			results = append(results, RelatedNode{Node: g.nodes[e.To], Distance: cur.dist + 1, Path: path})
			queue = append(queue, queued{idx: e.To, dist: cur.dist + 1, path: path})
		}
		for _, ei := range g.inEdges[cur.idx] {
			e := g.edges[ei]
			if visited[e.From] {
				continue
			}
			visited[e.From] = true
			path := append(append([]Relationship{}, cur.path...), e.Rel)
			results = append(results, RelatedNode{Node: g.nodes[e.From], Distance: cur.dist + 1, Path: path})
			queue = append(queue, queued{idx: e.From, dist: cur.dist + 1, path: path})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := Priority(results[i].Path[len(results[i].Path)-1]), Priority(results[j].Path[len(results[j].Path)-1])
		if pi != pj {
			return pi < pj
		}
		return results[i].Distance < results[j].Distance
	})
	return results
}

// FindPathWithEdges computes the shortest path by summed edge weight
// between two symbols using Dijkstra, but — matching a known limitation
// in the source this behavior was distilled from (spec.md §9 Open
// Questions: "find_path... returns only [from, to] rather than the full
// reconstructed path despite computing Dijkstra distances") — returns
// only the endpoint pair and the total distance, not the intermediate
// hops. Implementers inheriting this contract should not "fix" it
// without a spec change, since callers may depend on the short form.
func (g *Graph) FindPathWithEdges(from, to Node) (path []Node, distance float64, found bool) {
	src, dst := g.indexOf(from), g.indexOf(to)
	if src < 0 || dst < 0 {
		return nil, 0, false
	}
	if src == dst {
		return []Node{from}, 0, true
	}

	const inf = 1<<63 - 1
	dist := make(map[int]float64, len(g.nodes))
	for i := range g.nodes {
		dist[i] = inf
	}
	dist[src] = 0
	visited := make(map[int]bool)

	for {
		u, best := -1, float64(inf)
		for i, d := range dist {
			if !visited[i] && d < best {
				u, best = i, d
			}
		}
		if u < 0 {
			break
		}
		if u == dst {
			break
		}
		visited[u] = true
		for _, ei := range g.outEdges[u] {
			e := g.edges[ei]
			if nd := dist[u] + e.Weight; nd < dist[e.To] {
				dist[e.To] = nd
			}
		}
	}

	if dist[dst] == inf {
		return nil, 0, false
	}
	// Per the open-question contract above: endpoints only.
	return []Node{from, to}, dist[dst], true
}

// ContextForSymbol returns the chunk-ids reachable from name within
// depth, including the symbol's own defining chunk (spec.md §4.5).
func (g *Graph) ContextForSymbol(name string, depth int) []string {
	nodes := g.NodesByName(name)
	seen := make(map[string]bool)
	var out []string
	for _, n := range nodes {
		if !seen[n.ChunkID] {
			seen[n.ChunkID] = true
			out = append(out, n.ChunkID)
		}
		for _, rn := range g.RelatedNodes(n, depth) {
			if !seen[rn.Node.ChunkID] {
				seen[rn.Node.ChunkID] = true
				out = append(out, rn.Node.ChunkID)
			}
		}
	}
	return out
}

// NodeCount reports the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount reports the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns the node arena in insertion order. The slice is shared;
// callers must not mutate it.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns all edges; From/To index into Nodes().
func (g *Graph) Edges() []Edge { return g.edges }

// AllChunkIDs returns every chunk-id referenced by a node, for the
// spec.md §8 invariant "Graph nodes' chunk-ids ⊆ corpus chunk-ids".
func (g *Graph) AllChunkIDs() []string {
	out := make([]string, 0, len(g.byChunkID))
	for id := range g.byChunkID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
