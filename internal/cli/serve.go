package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/cortexlens/contextd/internal/compare"
	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/indexpipeline"
	"github.com/cortexlens/contextd/internal/mcptools"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

// serverVersion is reported in the capabilities handshake and the MCP
// server's own identity.
const serverVersion = "0.1.0"

var servePublic bool

// serveCmd starts the project's MCP tool surface (spec.md §6.3) over
// stdio: capabilities, help, index, read_pack, search, context_pack,
// file_slice/cat, grep_context, text_search, map, list_files, the
// overview/explain/impact/trace graph tools, compare_search, and the
// meaning_pack/meaning_focus/evidence_fetch trio.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the context MCP server (read_pack, search, capabilities, ...)",
	Long: `Serve starts the Model Context Protocol server that fronts this project's
indexed corpus: read_pack for budgeted context envelopes, search for raw
hybrid results, compare_search for retrieval regression checks, and the
meaning/evidence tools for anchor documents.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&servePublic, "public", false, "allow binding beyond loopback (stdio transport ignores this; reserved for future network transports)")
}

func runServe(cmd *cobra.Command, args []string) error {
	rootPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	engine, pipeline, err := buildEngine(rootPath)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}

	compareRunner, err := compare.New(engine.Corpus, engine.Registry, engine.Indexes)
	if err != nil {
		return fmt.Errorf("failed to build compare runner: %w", err)
	}

	mcpServer := server.NewMCPServer("contextd", serverVersion, server.WithToolCapabilities(true))

	indexed := func() bool {
		wm, exists, ferr := freshness.LoadWatermark(engine.Root.WatermarkPath())
		return ferr == nil && exists && wm != nil
	}

	graphHandle := mcptools.NewGraphHandle(engine.Graph, engine.Corpus)

	mcptools.AddCapabilitiesTool(mcpServer, serverVersion, indexed)
	mcptools.AddHelpTool(mcpServer)
	mcptools.AddIndexTool(mcpServer, pipeline, func(g *symbolgraph.Graph) {
		engine.Graph = g
		graphHandle.SetGraph(g)
	})
	mcptools.AddReadPackTool(mcpServer, engine)
	mcptools.AddSearchTool(mcpServer, engine)
	mcptools.AddContextPackTool(mcpServer, engine)
	mcptools.AddFileSliceTool(mcpServer, engine.Root.Path)
	mcptools.AddGrepContextTool(mcpServer, engine.Root.Path, engine.Corpus)
	mcptools.AddTextSearchTool(mcpServer, engine.Root.Path, engine.Corpus)
	mcptools.AddMapTool(mcpServer, engine.Corpus)
	mcptools.AddListFilesTool(mcpServer, engine.Corpus)
	mcptools.AddOverviewTool(mcpServer, graphHandle)
	mcptools.AddExplainTool(mcpServer, graphHandle)
	mcptools.AddImpactTool(mcpServer, graphHandle)
	mcptools.AddTraceTool(mcpServer, graphHandle)
	mcptools.AddCompareSearchTool(mcpServer, compareRunner, func() error {
		return compareRunner.Invalidate(engine.Corpus, engine.Registry, engine.Indexes)
	})
	mcptools.AddMeaningPackTool(mcpServer, engine.Root.Path)
	mcptools.AddMeaningFocusTool(mcpServer, engine.Root.Path)
	mcptools.AddEvidenceFetchTool(mcpServer, engine.Root.Path)

	// Opportunistic prewarm: reindex after a quiet period of file changes
	// so reads find a fresh corpus, unless single-process serving was
	// requested (CONTEXT_DISABLE_DAEMON=1, spec.md §6.4).
	if os.Getenv("CONTEXT_DISABLE_DAEMON") != "1" {
		if watcher, werr := indexpipeline.NewWatcher(pipeline); werr == nil {
			watcher.Start(context.Background(), func(indexpipeline.Stats) {
				engine.Graph = pipeline.Graph
				graphHandle.SetGraph(pipeline.Graph)
			})
			defer watcher.Stop()
		} else {
			fmt.Fprintf(os.Stderr, "contextd: prewarm watcher unavailable: %v\n", werr)
		}
	}

	fmt.Fprintf(os.Stderr, "contextd serving %s over stdio\n", engine.Root.Path)
	return server.ServeStdio(mcpServer)
}
