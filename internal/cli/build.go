package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildRebuild bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or reuse the passage index",
	Long: `Ingest the configured CSV source, chunk and embed the documents, and
persist the index and chunk artifacts. An existing index is reused when it
matches the current embedding model and configuration.

Examples:
  rag build             # Load the index, building it only when needed
  rag build --rebuild   # Always rebuild from the source`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildRebuild, "rebuild", false, "rebuild even when a usable index exists")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	p, err := newPipeline(cfg, newProgress("Embedding"))
	if err != nil {
		return err
	}

	result, err := p.ensure(buildRebuild)
	if err != nil {
		return err
	}

	manifest := p.index.Manifest()
	if !result.Rebuilt {
		fmt.Printf("Index is up to date (%d chunks, model %s)\n", result.Chunks, manifest.Model)
		fmt.Printf("Index stored at: %s\n", p.artifacts.Location())
		return nil
	}

	fmt.Printf("\nIndex built (%s):\n", result.Reason)
	fmt.Printf("  Documents:  %d\n", result.Documents)
	fmt.Printf("  Chunks:     %d\n", result.Chunks)
	fmt.Printf("  Model:      %s (%d dimensions)\n", manifest.Model, manifest.Dimension)
	fmt.Printf("  Build ID:   %s\n", manifest.BuildID)
	fmt.Printf("  Duration:   %s\n", formatDuration(result.Duration))
	fmt.Printf("\nIndex stored at: %s\n", p.artifacts.Location())
	return nil
}
