package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexlens/contextd/internal/capabilities"
	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/project"
)

// capabilitiesCmd prints the schema/version/budget handshake (spec.md
// §4.15) without starting a server.
var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Print schema versions, default budgets, and the suggested start route",
	RunE:  runCapabilities,
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := project.Resolve(rootDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}

	_, indexed, err := freshness.LoadWatermark(root.WatermarkPath())
	if err != nil {
		indexed = false
	}

	caps := capabilities.Build(serverVersion, indexed)
	data, err := json.MarshalIndent(caps, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
