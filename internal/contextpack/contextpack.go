// Package contextpack implements C9 (context assembler) and C10 (context
// pack): turning ranked hybrid-search primaries into a budgeted,
// graph-expanded pack of primary and related chunks (spec.md §4.9, §4.10).
package contextpack

import (
	"strings"

	"github.com/cortexlens/contextd/internal/apperr"
	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

// Strategy controls how far the assembler expands from each primary
// (spec.md §4.9).
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyExtended Strategy = "extended"
	StrategyDeep     Strategy = "deep"
)

// RelatedMode narrows which related nodes qualify (spec.md §4.9).
type RelatedMode string

const (
	RelatedExplore RelatedMode = "explore"
	RelatedFocus   RelatedMode = "focus"
)

// Role distinguishes a hybrid-search hit from a graph-derived neighbor.
type Role string

const (
	RolePrimary Role = "primary"
	RoleRelated Role = "related"
)

// Item is one assembled entry (spec.md §4.9 output shape), before
// char-budget packing.
type Item struct {
	Role         Role
	ChunkID      string
	Score        float64
	Relationship symbolgraph.Relationship // empty for primaries
	Distance     int                       // 0 for primaries
}

// Primary is one ranked hybrid-search hit feeding the assembler.
type Primary struct {
	ChunkID string
	Score   float64
}

// AssembleOptions controls one Assemble call (spec.md §4.9).
type AssembleOptions struct {
	Strategy             Strategy
	RelatedMode          RelatedMode
	MaxRelatedPerPrimary int
	GlobalRelatedCap     int
	QueryTokens          []string // used when RelatedMode == focus
}

// Assemble expands primaries via the symbol graph per strategy/mode,
// returning a deterministic ordered item list: all primaries first (in
// input order), then each primary's related items (spec.md §4.9).
func Assemble(primaries []Primary, graph *symbolgraph.Graph, opts AssembleOptions) []Item {
	items := make([]Item, 0, len(primaries))
	for _, p := range primaries {
		items = append(items, Item{Role: RolePrimary, ChunkID: p.ChunkID, Score: p.Score})
	}
	if opts.Strategy == StrategyDirect || opts.Strategy == "" {
		return items
	}

	depth := 1
	if opts.Strategy == StrategyDeep {
		depth = 2
	}
	relatedCap := opts.MaxRelatedPerPrimary
	if relatedCap <= 0 {
		relatedCap = 5
	}
	globalCap := opts.GlobalRelatedCap
	if globalCap <= 0 {
		globalCap = 25
	}

	seen := make(map[string]bool, len(primaries))
	for _, p := range primaries {
		seen[p.ChunkID] = true
	}

	totalRelated := 0
	for _, p := range primaries {
		if totalRelated >= globalCap {
			break
		}
		nodes := graph.NodeByChunkID(p.ChunkID)
		var related []symbolgraph.RelatedNode
		for _, n := range nodes {
			related = append(related, graph.RelatedNodes(n, depth)...)
		}
		related = filterRelatedMode(related, opts.RelatedMode, opts.QueryTokens)

		added := 0
		for _, rn := range related {
			if added >= relatedCap || totalRelated >= globalCap {
				break
			}
			if seen[rn.Node.ChunkID] {
				continue
			}
			seen[rn.Node.ChunkID] = true
			items = append(items, Item{
				Role:         RoleRelated,
				ChunkID:      rn.Node.ChunkID,
				Score:        p.Score / float64(rn.Distance+1),
				Relationship: rn.Path[len(rn.Path)-1],
				Distance:     rn.Distance,
			})
			added++
			totalRelated++
		}
	}
	return items
}

// filterRelatedMode narrows related nodes to those whose name overlaps
// query tokens under RelatedFocus; RelatedExplore passes everything
// through (spec.md §4.9).
func filterRelatedMode(related []symbolgraph.RelatedNode, mode RelatedMode, queryTokens []string) []symbolgraph.RelatedNode {
	if mode != RelatedFocus || len(queryTokens) == 0 {
		return related
	}
	tokens := make([]string, len(queryTokens))
	for i, t := range queryTokens {
		tokens[i] = strings.ToLower(t)
	}
	var out []symbolgraph.RelatedNode
	for _, rn := range related {
		name := strings.ToLower(rn.Node.Symbol.Name)
		for _, t := range tokens {
			if t != "" && strings.Contains(name, t) {
				out = append(out, rn)
				break
			}
		}
	}
	return out
}

// PackItem is one rendered entry in a Pack, carrying the fields the
// shrink policy is allowed to progressively drop (spec.md §4.10).
type PackItem struct {
	Role         Role   `json:"role"`
	ChunkID      string `json:"chunk_id"`
	Score        float64 `json:"score"`
	File         string `json:"file"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Symbol       string `json:"symbol,omitempty"`
	ChunkType    string `json:"chunk_type,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Distance     *int   `json:"distance,omitempty"`
	Imports      []string `json:"imports,omitempty"`
	Content      string `json:"content"`
}

// Budget reports pack truncation (spec.md §4.10).
type Budget struct {
	MaxChars         int    `json:"max_chars"`
	UsedChars        int    `json:"used_chars"`
	Truncated        bool   `json:"truncated"`
	DroppedItems     int    `json:"dropped_items"`
	TruncationReason string `json:"truncation_reason,omitempty"`
}

// NextAction suggests a drill-down follow-up call.
type NextAction struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// Pack is the final budgeted output (spec.md §4.10).
type Pack struct {
	Items       []PackItem   `json:"items"`
	Budget      Budget       `json:"budget"`
	NextActions []NextAction `json:"next_actions,omitempty"`
}

// BuildPack resolves items against the corpus and enforces maxChars via
// the shrink-loop policy of spec.md §4.10, never failing: an
// unshrinkable pack degrades to an empty, truncated=true result.
func BuildPack(items []Item, c *corpus.Corpus, maxChars int) Pack {
	packItems := make([]PackItem, 0, len(items))
	for _, it := range items {
		ch, ok := c.GetChunk(it.ChunkID)
		if !ok {
			continue
		}
		pi := PackItem{
			Role: it.Role, ChunkID: it.ChunkID, Score: it.Score,
			File: ch.RelPath, StartLine: ch.StartLine, EndLine: ch.EndLine,
			Symbol: ch.Symbol, ChunkType: string(ch.Kind),
			Imports: ch.Imports, Content: ch.Content,
		}
		if it.Relationship != "" {
			pi.Relationship = string(it.Relationship)
			d := it.Distance
			pi.Distance = &d
		}
		packItems = append(packItems, pi)
	}

	if maxChars <= 0 {
		return Pack{Items: packItems, Budget: Budget{MaxChars: maxChars, UsedChars: packSize(packItems)}}
	}

	dropped := 0
	shrunk := false
	for packSize(packItems) > maxChars {
		if len(packItems) == 0 {
			return Pack{Items: nil, Budget: Budget{
				MaxChars: maxChars, UsedChars: 0, Truncated: true,
				DroppedItems: dropped, TruncationReason: "unshrinkable",
			}}
		}

		// Step 1: drop the tail related item, if any exists.
		if idx := lastRelatedIndex(packItems); idx >= 0 {
			packItems = append(packItems[:idx], packItems[idx+1:]...)
			dropped++
			continue
		}

		// Step 2: exactly one item remains; shrink it field by field.
		if len(packItems) == 1 {
			shrunk = true
			last := &packItems[0]
			if len(last.Imports) > 0 {
				last.Imports = nil
				continue
			}
			if len(last.Content) > 1 {
				last.Content = halveOnRuneBoundary(last.Content)
				continue
			}
			if last.Relationship != "" {
				last.Relationship = ""
				continue
			}
			if last.Distance != nil {
				last.Distance = nil
				continue
			}
			if last.ChunkType != "" {
				last.ChunkType = ""
				continue
			}
			if last.Symbol != "" {
				last.Symbol = ""
				continue
			}
			// Step 3: nothing left to shrink on the sole item; drop it.
			packItems = nil
			dropped++
			continue
		}

		// No related items and more than one primary: drop the tail primary.
		packItems = packItems[:len(packItems)-1]
		dropped++
	}

	return Pack{
		Items:  packItems,
		Budget: Budget{MaxChars: maxChars, UsedChars: packSize(packItems), Truncated: dropped > 0 || shrunk, DroppedItems: dropped},
	}
}

func lastRelatedIndex(items []PackItem) int {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Role == RoleRelated {
			return i
		}
	}
	return -1
}

func halveOnRuneBoundary(s string) string {
	runes := []rune(s)
	half := len(runes) / 2
	if half == 0 {
		return ""
	}
	return string(runes[:half])
}

// packSize is a deterministic proxy for the pack's rendered character
// count: every field that survives into the `.context` envelope (C12)
// contributes, so the shrink loop converges on the same order C12
// renders in.
func packSize(items []PackItem) int {
	total := 0
	for _, it := range items {
		total += len(it.File) + len(it.Symbol) + len(it.ChunkType) + len(it.Relationship) + len(it.Content)
		for _, imp := range it.Imports {
			total += len(imp)
		}
	}
	return total
}

// NoPrimariesError is returned when Assemble/BuildPack is asked to run
// over zero primaries, per spec.md §7 invalid_request ("empty query").
func NoPrimariesError() error {
	return apperr.New(apperr.CodeInvalidRequest, "no primary chunks to assemble a context pack from")
}

// ChunkKind re-exports chunk.Kind for callers constructing PackItem
// filters without importing internal/chunk directly.
type ChunkKind = chunk.Kind
