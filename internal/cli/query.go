package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the passages nearest to a query",
	Long: `Embed the query and list the nearest indexed chunks with their L2
distance, nearest first. The index is built first when missing.

Examples:
  rag query -q "renew a driver license"
  rag query -q "vehicle registration" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	p, err := newPipeline(cfg, newProgress("Embedding"))
	if err != nil {
		return err
	}
	if _, err := p.ensure(false); err != nil {
		return err
	}

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	hits, err := p.index.SearchHits(queryText, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(hits), queryText)
	for i, h := range hits {
		fmt.Printf("--- [%d] chunk %d, document %d (distance: %.4f) ---\n", i+1, h.Ordinal, h.Source.Document, h.Distance)
		fmt.Println(preview(h.Text, 500))
		fmt.Println()
	}
	return nil
}

// preview truncates text to max runes.
func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
