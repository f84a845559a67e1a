package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"retrieval/config"
	"retrieval/internal/adapter/embedding"
	"retrieval/internal/adapter/store"
	"retrieval/internal/port"
	"retrieval/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Project directory holding rag.yaml")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 3, "Number of results")
	runs := flag.Int("n", 50, "Number of timed searches")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"query\" [-k 3] [-n 50]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index shape (chunks, model, dimension)")
		fmt.Println("  2. Nearest passages and their L2 distance")
		fmt.Println("  3. Search latency over repeated queries")
		os.Exit(1)
	}

	godotenv.Load()
	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Resolve(*dir)

	embedder, err := setupEmbedding(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	artifacts := store.NewBoltArtifactStore(cfg.Index.StorePath, cfg.Index.IndexName, cfg.Index.ChunksName)
	index := usecase.NewVectorIndex(embedder, artifacts)
	if err := index.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index: %v (run 'rag build' first)\n", err)
		os.Exit(1)
	}

	manifest := index.Manifest()
	fmt.Println("SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Chunks indexed: %d\n", index.Len())
	fmt.Printf("Model: %s (%s)\n", manifest.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", manifest.Dimension)
	fmt.Printf("Built: %s\n\n", manifest.CreatedAt.Format(time.RFC3339))

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	hits, err := index.SearchHits(*query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d matches:\n\n", len(hits))
	for i, h := range hits {
		preview := h.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		fmt.Printf("%d. [%.4f] chunk %d (document %d)\n", i+1, h.Distance, h.Ordinal, h.Source.Document)
		fmt.Printf("   %s\n\n", preview)
	}

	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := index.SearchHits(*query, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}
	if len(latencies) == 0 {
		return
	}
	slices.Sort(latencies)

	var total time.Duration
	for _, l := range latencies {
		total += l
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("LATENCY (%d searches, embedding included):\n", len(latencies))
	fmt.Printf("  Mean: %s\n", total/time.Duration(len(latencies)))
	fmt.Printf("  p50:  %s\n", percentile(latencies, 0.50))
	fmt.Printf("  p95:  %s\n", percentile(latencies, 0.95))
	fmt.Printf("  Max:  %s\n", latencies[len(latencies)-1])
}

// percentile reads the p-th quantile of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(p * float64(len(sorted)-1))
	return sorted[i]
}

func setupEmbedding(cfg *config.Config) (port.Embedder, error) {
	var embedder *embedding.OpenAIEmbedder
	var err error

	switch cfg.Embedding.Provider {
	case "mock":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	case "ollama":
		embedder, err = embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "openai":
		if cfg.Embedding.BaseURL != "" {
			embedder, err = embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
		} else {
			embedder, err = embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
		}
	case "jina":
		embedder, err = embedding.NewJinaEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	case "deepseek":
		embedder, err = embedding.NewDeepSeekEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	if cfg.Embedding.TimeoutSecs > 0 {
		embedder.SetTimeout(time.Duration(cfg.Embedding.TimeoutSecs) * time.Second)
	}
	return embedder, nil
}
