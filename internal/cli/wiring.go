package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"retrieval/config"
	"retrieval/internal/adapter/cache"
	"retrieval/internal/adapter/chunker"
	"retrieval/internal/adapter/embedding"
	"retrieval/internal/adapter/fs"
	"retrieval/internal/adapter/llm"
	"retrieval/internal/adapter/source"
	"retrieval/internal/adapter/store"
	"retrieval/internal/port"
	"retrieval/internal/usecase"
)

// pipeline is the ingestion-to-index stack assembled from config.
type pipeline struct {
	artifacts *store.BoltArtifactStore
	index     *usecase.VectorIndex
	builder   *usecase.BuildUseCase
}

func newPipeline(cfg *config.Config, progress func(done, total int)) (*pipeline, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	artifacts := store.NewBoltArtifactStore(cfg.Index.StorePath, cfg.Index.IndexName, cfg.Index.ChunksName)
	hash := config.ComputeConfigHash(cfg)

	opts := []usecase.IndexOption{
		usecase.WithBatchSize(cfg.Embedding.BatchSize),
		usecase.WithConfigHash(hash),
		usecase.WithLogger(logger),
	}
	if progress != nil {
		opts = append(opts, usecase.WithProgress(progress))
	}
	index := usecase.NewVectorIndex(embedder, artifacts, opts...)

	ingestor := source.NewCSVIngestor(sourceFields(cfg), fs.NewResolver(), logger)
	splitter := chunker.NewRecursiveChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	builder := usecase.NewBuildUseCase(ingestor, splitter, index, artifacts, cfg.Source.Path, hash, logger)

	return &pipeline{artifacts: artifacts, index: index, builder: builder}, nil
}

// ensure loads the persisted index or builds it when it is missing or stale.
func (p *pipeline) ensure(force bool) (*usecase.BuildResult, error) {
	result, err := p.builder.Ensure(force)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare index: %w", err)
	}
	return result, nil
}

// retriever puts the query cache in front of the index.
func (p *pipeline) retriever(cfg *config.Config) (*cache.CachedRetriever, *cache.QueryCache) {
	qc := cache.NewQueryCache(cfg.Retrieve.CacheSize, time.Duration(cfg.Retrieve.CacheTTLSecs)*time.Second)
	return cache.NewCachedRetriever(p.index, qc), qc
}

func sourceFields(cfg *config.Config) []source.Field {
	fields := make([]source.Field, len(cfg.Source.Fields))
	for i, f := range cfg.Source.Fields {
		fields[i] = source.Field{Name: f.Name, Label: f.Label}
	}
	return fields
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	var embedder *embedding.OpenAIEmbedder
	var err error

	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.Embedding.BaseURL != "" {
			embedder, err = embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
		} else {
			embedder, err = embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
		}
	case "deepseek":
		embedder, err = embedding.NewDeepSeekEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	case "jina":
		embedder, err = embedding.NewJinaEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	case "ollama":
		embedder, err = embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "mock":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.Embedding.TimeoutSecs > 0 {
		embedder.SetTimeout(time.Duration(cfg.Embedding.TimeoutSecs) * time.Second)
	}
	return embedder, nil
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	g := cfg.Generation
	model, err := llm.NewChatLLM(llm.Options{
		Model:       g.Model,
		BaseURL:     g.BaseURL,
		APIKeyEnv:   g.APIKeyEnv,
		Temperature: g.Temperature,
		TopP:        g.TopP,
		MaxTokens:   g.MaxTokens,
		Timeout:     time.Duration(g.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return model, nil
}

// newProgress returns a progress callback that draws an embedding bar once
// the total is known.
func newProgress(description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	var mu sync.Mutex
	var start time.Time

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			start = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(start).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", description, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
