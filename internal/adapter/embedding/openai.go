package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const maxBatch = 100

// OpenAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIEmbedder(apiKeyEnv, model string) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.openai.com/v1")
}

func NewDeepSeekEmbedder(apiKeyEnv, model string) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.deepseek.com/v1")
}

func NewJinaEmbedder(apiKeyEnv, model string) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.jina.ai/v1")
}

func NewOllamaEmbedder(model, baseURL string) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return newEmbedder("ollama", model, baseURL), nil
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return newEmbedder(apiKey, model, baseURL), nil
}

func newEmbedder(apiKey, model, baseURL string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: 60 * time.Second,
	}
}

// SetTimeout bounds each embeddings request.
func (e *OpenAIEmbedder) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

func (e *OpenAIEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatch {
		end := min(i+maxBatch, len(texts))

		embeddings, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("no embedding returned for input %d of %d", i, len(texts))
		}
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
