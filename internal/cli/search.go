package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/readpack"
)

var (
	searchMaxChars    int
	searchStalePolicy string
)

// searchCmd runs one hybrid query (spec.md §4.8) from the command line
// and prints the rendered `.context` envelope.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed project (hybrid semantic + lexical)",
	Long: `Search runs a single hybrid query against this project's corpus and vector
indexes and prints the budgeted .context envelope.

Examples:
  # Plain search
  contextd search "where is authentication handled"

  # Refresh a stale index first, within its default time budget
  contextd search --stale-policy auto "Greet"
`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchMaxChars, "max-chars", 8000, "character budget for the rendered envelope")
	searchCmd.Flags().StringVar(&searchStalePolicy, "stale-policy", "", "warn, auto, or off: what to do when the index is stale")
}

func runSearch(cmd *cobra.Command, args []string) error {
	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	engine, pipeline, err := buildEngine(rootDir)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	defer pipeline.Registry.Close()

	resp, err := engine.Run(context.Background(), readpack.Request{
		Intent:      readpack.IntentQuery,
		Query:       args[0],
		MaxChars:    searchMaxChars,
		StalePolicy: freshness.Policy(searchStalePolicy),
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Text)
	return nil
}
