package mcptools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexlens/contextd/internal/contextpack"
	"github.com/cortexlens/contextd/internal/hybrid"
	"github.com/cortexlens/contextd/internal/readpack"
)

// AddContextPackTool registers the context_pack tool: hybrid search
// followed directly by graph-expanded, budget-packed assembly, without
// read_pack's envelope/intent layer on top (spec.md §6.3, §4.9-§4.10).
func AddContextPackTool(s *server.MCPServer, engine *readpack.Engine) {
	tool := mcp.NewTool("context_pack",
		mcp.WithDescription("Assemble a budgeted context pack for a query: hybrid search results plus graph-related neighbors, shrunk to fit max_chars."),
		mcp.WithString("query", mcp.Required(), mcp.Description("search query")),
		mcp.WithNumber("limit", mcp.Description("maximum primary results (default 10)")),
		mcp.WithNumber("max_chars", mcp.Description("character budget for the pack (default 8000)")),
		mcp.WithArray("include_paths", mcp.Description("path prefixes a result's path must start with")),
		mcp.WithArray("exclude_paths", mcp.Description("path prefixes a result's path must not start with")),
		mcp.WithString("file_pattern", mcp.Description("glob restricting which files are searched")),
		mcp.WithBoolean("prefer_code", mcp.Description("rank code chunks above docs/comments")),
		mcp.WithBoolean("include_docs", mcp.Description("include documentation/comment chunks (default true)")),
		mcp.WithString("strategy", mcp.Description("direct, extended (default), or deep graph expansion")),
		mcp.WithString("related_mode", mcp.Description("explore (default) or focus related-node filtering")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createContextPackHandler(engine))
}

func createContextPackHandler(engine *readpack.Engine) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		query := argString(args, "query")
		if query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		searcher, err := hybrid.New(engine.Corpus, engine.Registry, engine.Indexes)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer searcher.Close()

		limit := 10
		if n, ok := argInt(args, "limit"); ok && n > 0 {
			limit = n
		}
		maxChars := 8000
		if n, ok := argInt(args, "max_chars"); ok && n > 0 {
			maxChars = n
		}
		preferCode, _ := argBool(args, "prefer_code")
		var includeDocs *bool
		if b, ok := argBool(args, "include_docs"); ok {
			includeDocs = &b
		}

		results, meta, err := searcher.Search(ctx, query, hybrid.Options{
			Limit: limit, AllowSemantic: true,
			Filters: hybrid.Filters{
				IncludePaths: argStrings(args, "include_paths"),
				ExcludePaths: argStrings(args, "exclude_paths"),
				FilePattern:  argString(args, "file_pattern"),
				PreferCode:   preferCode,
				IncludeDocs:  includeDocs,
			},
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		primaries := make([]contextpack.Primary, len(results))
		for i, r := range results {
			primaries[i] = contextpack.Primary{ChunkID: r.ChunkID, Score: r.Score}
		}

		strategy := contextpack.Strategy(argString(args, "strategy"))
		if strategy == "" {
			strategy = contextpack.StrategyExtended
		}
		relatedMode := contextpack.RelatedMode(argString(args, "related_mode"))

		items := contextpack.Assemble(primaries, engine.Graph, contextpack.AssembleOptions{
			Strategy: strategy, RelatedMode: relatedMode,
			MaxRelatedPerPrimary: 5, GlobalRelatedCap: 25,
			QueryTokens: strings.Fields(query),
		})
		pack := contextpack.BuildPack(items, engine.Corpus, maxChars)

		if meta.DegradationReason != "" {
			return textResult(struct {
				contextpack.Pack
				Degraded string `json:"degraded"`
			}{Pack: pack, Degraded: meta.DegradationReason})
		}
		return textResult(pack)
	}
}
