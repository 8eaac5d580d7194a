package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	quietFlag bool
	fullFlag  bool
)

// indexCmd runs the C6 write pipeline (spec.md §4.6) over the current
// project: chunk, embed, and graph-build every changed file, then
// write the watermark.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project for semantic and lexical search",
	Long: `Index builds or refreshes this project's chunk corpus, per-model vector
indexes, and symbol graph under an exclusive project lock (spec.md §4.6).

Examples:
  # Incremental index (only changed/added files)
  contextd index

  # Ignore change detection and re-chunk/re-embed everything
  contextd index --full

  # Suppress progress output
  contextd index --quiet
`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "disable progress output")
	indexCmd.Flags().BoolVar(&fullFlag, "full", false, "re-chunk and re-embed every tracked file, ignoring change detection")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted! Cancelling indexing...")
		cancel()
	}()

	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	pipeline, err := openPipeline(rootDir)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	defer pipeline.Registry.Close()

	var bar *progressbar.ProgressBar
	if !quietFlag {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWidth(40),
		)
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
					bar.Add(1)
				}
			}
		}()
	}

	result := func() (string, error) {
		if fullFlag {
			s, err := pipeline.IndexFull(ctx)
			return fmt.Sprintf("Files: %d scanned, %d chunks, %dms", s.FilesScanned, s.ChunksTotal, s.TimeMS), err
		}
		s, err := pipeline.Index(ctx)
		return fmt.Sprintf("Files: %d scanned (%d added, %d changed, %d removed), %d chunks, %dms",
			s.FilesScanned, s.FilesAdded, s.FilesChanged, s.FilesRemoved, s.ChunksTotal, s.TimeMS), err
	}

	summary, err := result()
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Index complete: %s (%s)\n", summary, pipeline.Root.StateDir)
	return nil
}
