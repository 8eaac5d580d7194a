package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexlens/contextd/internal/indexpipeline"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

// indexResult is the index tool's structured output (spec.md §6.3
// "files, chunks, time_ms, index path").
type indexResult struct {
	FilesScanned int    `json:"files_scanned"`
	FilesAdded   int    `json:"files_added"`
	FilesChanged int    `json:"files_changed"`
	FilesRemoved int     `json:"files_removed"`
	Chunks       int    `json:"chunks"`
	TimeMS       int64  `json:"time_ms"`
	IndexPath    string `json:"index_path"`
}

// AddIndexTool registers the index tool: a programmatic entry point for
// the C6 write pipeline, the same one the `contextd index` CLI command
// drives (spec.md §6.3, §4.6). afterReindex, if non-nil, is called with
// the freshly rebuilt graph so other already-open collaborators (the
// read_pack engine) pick up the new graph without a server restart.
func AddIndexTool(s *server.MCPServer, pipeline *indexpipeline.Pipeline, afterReindex func(*symbolgraph.Graph)) {
	tool := mcp.NewTool("index",
		mcp.WithDescription("Index (or re-index) the project: chunk, embed, and graph-build changed files under an exclusive lock."),
		mcp.WithBoolean("full", mcp.Description("re-chunk and re-embed every tracked file, ignoring change detection")),
		mcp.WithReadOnlyHintAnnotation(false),
	)
	s.AddTool(tool, createIndexHandler(pipeline, afterReindex))
}

func createIndexHandler(pipeline *indexpipeline.Pipeline, afterReindex func(*symbolgraph.Graph)) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		full, _ := argBool(args, "full")

		var stats indexpipeline.Stats
		var err error
		if full {
			stats, err = pipeline.IndexFull(ctx)
		} else {
			stats, err = pipeline.Index(ctx)
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if afterReindex != nil {
			afterReindex(pipeline.Graph)
		}
		return textResult(indexResult{
			FilesScanned: stats.FilesScanned, FilesAdded: stats.FilesAdded,
			FilesChanged: stats.FilesChanged, FilesRemoved: stats.FilesRemoved,
			Chunks: stats.ChunksTotal, TimeMS: stats.TimeMS,
			IndexPath: pipeline.Root.StateDir,
		})
	}
}
