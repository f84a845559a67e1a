package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Options configures a chat model behind an OpenAI-compatible endpoint.
type Options struct {
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
}

// ChatLLM sends one user message per prompt and returns the first choice.
type ChatLLM struct {
	client *openai.Client
	opts   Options
}

func NewChatLLM(opts Options) (*ChatLLM, error) {
	apiKey := os.Getenv(opts.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", opts.APIKeyEnv)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	return &ChatLLM{client: openai.NewClientWithConfig(cfg), opts: opts}, nil
}

func (l *ChatLLM) Generate(prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.Timeout)
	defer cancel()

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: l.opts.Temperature,
		TopP:        l.opts.TopP,
		MaxTokens:   l.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *ChatLLM) ModelName() string {
	return l.opts.Model
}
