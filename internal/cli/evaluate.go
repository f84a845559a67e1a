package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"retrieval/internal/adapter/fs"
	"retrieval/internal/adapter/source"
	"retrieval/internal/usecase"
)

var (
	evalSource     string
	evalReport     string
	evalMaxSamples int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score generated answers against a labelled dataset",
	Long: `Run every sample of an evaluation CSV (columns 'messages' and 'answers')
through retrieval and generation, and report Exact Match and token F1.
A per-sample CSV report is written alongside.

Examples:
  rag evaluate
  rag evaluate --source data/test.csv --max-samples 20`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evalSource, "source", "", "evaluation CSV (default from config)")
	evaluateCmd.Flags().StringVar(&evalReport, "report", "", "report CSV path (default from config)")
	evaluateCmd.Flags().IntVarP(&evalMaxSamples, "max-samples", "n", 0, "samples to evaluate (default from config)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ec := cfg.Evaluate
	if evalSource != "" {
		ec.Source = evalSource
	}
	if evalReport != "" {
		ec.ReportPath = evalReport
	}
	if evalMaxSamples > 0 {
		ec.MaxSamples = evalMaxSamples
	}

	table, err := source.ReadTable(fs.NewResolver(), ec.Source)
	if err != nil {
		return fmt.Errorf("failed to read evaluation set: %w", err)
	}

	model, err := newLLM(cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg, newProgress("Embedding"))
	if err != nil {
		return err
	}
	if _, err := p.ensure(false); err != nil {
		return err
	}

	retriever, _ := p.retriever(cfg)
	answerer := usecase.NewAnswerUseCase(retriever, model, cfg.Retrieve.TopK)
	evaluator := usecase.NewEvaluator(retriever, answerer, cfg.Retrieve.TopK, logger)

	report, err := evaluator.Evaluate(table, ec.MaxSamples, ec.ReportPath)
	if err != nil {
		return err
	}

	fmt.Printf("Evaluated %d samples\n", len(report.Samples))
	fmt.Printf("  Average F1: %.4f\n", report.AvgF1)
	fmt.Printf("  Average EM: %.4f\n", report.AvgEM)
	fmt.Printf("Report written to: %s\n", report.ReportPath)
	return nil
}
