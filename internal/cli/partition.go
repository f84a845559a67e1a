package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"retrieval/internal/adapter/fs"
	"retrieval/internal/adapter/source"
	"retrieval/internal/usecase"
)

var (
	partitionSource string
	partitionOutput string
	partitionBudget int64
	partitionSeed   uint64
	partitionJSON   bool
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Split a CSV table into train, validation and test files",
	Long: `Shuffle the source rows and write train.csv, validation.csv and test.csv
keeping the configured proportions while each file stays within the byte
budget.

Examples:
  rag partition
  rag partition --source data/raw.csv --out data/splits --budget 26214400`,
	RunE: runPartition,
}

func init() {
	rootCmd.AddCommand(partitionCmd)
	partitionCmd.Flags().StringVar(&partitionSource, "source", "", "source CSV file or glob (default from config)")
	partitionCmd.Flags().StringVarP(&partitionOutput, "out", "o", "", "output directory (default from config)")
	partitionCmd.Flags().Int64Var(&partitionBudget, "budget", 0, "per-file byte budget (default from config)")
	partitionCmd.Flags().Uint64Var(&partitionSeed, "seed", 0, "shuffle seed (default from config)")
	partitionCmd.Flags().BoolVar(&partitionJSON, "json", false, "output as JSON")
}

func runPartition(cmd *cobra.Command, args []string) error {
	pc := GetConfig().Partition
	if partitionSource != "" {
		pc.Source = partitionSource
	}
	if partitionOutput != "" {
		pc.OutputDir = partitionOutput
	}
	if partitionBudget > 0 {
		pc.ByteBudget = partitionBudget
	}
	if cmd.Flags().Changed("seed") {
		pc.Seed = partitionSeed
	}

	table, err := source.ReadTable(fs.NewResolver(), pc.Source)
	if err != nil {
		return fmt.Errorf("failed to read source table: %w", err)
	}

	partitioner := usecase.NewPartitioner(pc.OutputDir, usecase.PartitionOptions{
		Seed:          pc.Seed,
		SampleRows:    pc.SampleRows,
		CheckInterval: pc.CheckInterval,
		Logger:        logger,
	})
	result, err := partitioner.Partition(table, pc.Fractions, pc.ByteBudget)
	if err != nil {
		return err
	}

	if partitionJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Partitioned %d rows (scale k=%d, budget %d bytes per file):\n", result.SourceRows, result.Scale, pc.ByteBudget)
	for _, s := range result.Slices {
		status := ""
		if s.Partial() {
			status = " (budget reached)"
		}
		fmt.Printf("  %-10s %6d/%-6d rows  %10d bytes  %s%s\n", s.Name, s.Written, s.Planned, s.Bytes, s.Path, status)
	}
	return nil
}
