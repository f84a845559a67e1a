package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"retrieval/internal/domain"
)

// Config holds all configuration for the retrieval tool.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Generation GenerationConfig `yaml:"generation"`
	Partition  PartitionConfig  `yaml:"partition"`
	Evaluate   EvaluateConfig   `yaml:"evaluate"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the tabular corpus.
type SourceConfig struct {
	Path   string  `yaml:"path"` // file or doublestar glob
	Fields []Field `yaml:"fields"`
}

// Field is one column folded into a document, in order.
type Field struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"` // empty = value emitted without a heading
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai", "ollama", "jina", "deepseek", "mock"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"` // only used by the mock provider
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig says where the two index artifacts live.
type IndexConfig struct {
	StorePath  string `yaml:"store_path"`
	IndexName  string `yaml:"index_name"`
	ChunksName string `yaml:"chunks_name"`
}

type RetrieveConfig struct {
	TopK         int `yaml:"top_k"`
	CacheSize    int `yaml:"cache_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs"`
}

// GenerationConfig configures the OpenAI-compatible chat model.
type GenerationConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type PartitionConfig struct {
	Source        string           `yaml:"source"`
	OutputDir     string           `yaml:"output_dir"`
	ByteBudget    int64            `yaml:"byte_budget"`
	Fractions     domain.Fractions `yaml:"fractions"`
	Seed          uint64           `yaml:"seed"`
	SampleRows    int              `yaml:"sample_rows"`
	CheckInterval int              `yaml:"check_interval"`
}

type EvaluateConfig struct {
	Source     string `yaml:"source"`
	ReportPath string `yaml:"report_path"`
	MaxSamples int    `yaml:"max_samples"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultFields are the dataset columns folded into each document.
func DefaultFields() []Field {
	return []Field{
		{Name: "document"},
		{Name: "ground_truth_ctx", Label: "Ground truth context:"},
		{Name: "ctxs", Label: "Retrieved contexts:"},
		{Name: "messages", Label: "Messages:"},
		{Name: "answers", Label: "Answer:"},
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Path:   "data/dmv_data_filtrato.csv",
			Fields: DefaultFields(),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   384,
			BatchSize:   64,
			TimeoutSecs: 60,
		},
		Index: IndexConfig{
			StorePath:  filepath.Join("data", "processed", "vector_store"),
			IndexName:  "dmv.index",
			ChunksName: "dmv_chunks.json",
		},
		Retrieve: RetrieveConfig{
			TopK:         3,
			CacheSize:    100,
			CacheTTLSecs: 300,
		},
		Generation: GenerationConfig{
			Model:       "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			APIKeyEnv:   "GOOGLE_API_KEY",
			Temperature: 0.4,
			TopP:        0.9,
			MaxTokens:   256,
			TimeoutSecs: 120,
		},
		Partition: PartitionConfig{
			Source:        "data/source.csv",
			OutputDir:     "data",
			ByteBudget:    25 * 1024 * 1024,
			Fractions:     domain.Fractions{Train: 0.50, Validation: 0.25, Test: 0.25},
			Seed:          42,
			SampleRows:    200,
			CheckInterval: 100,
		},
		Evaluate: EvaluateConfig{
			Source:     "data/dmv_data_filtrato.csv",
			ReportPath: filepath.Join("evaluation", "evaluation_report.csv"),
			MaxSamples: 50,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve anchors relative paths in the config at dir.
func (c *Config) Resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Source.Path = abs(c.Source.Path)
	c.Index.StorePath = abs(c.Index.StorePath)
	c.Partition.Source = abs(c.Partition.Source)
	c.Partition.OutputDir = abs(c.Partition.OutputDir)
	c.Evaluate.Source = abs(c.Evaluate.Source)
	c.Evaluate.ReportPath = abs(c.Evaluate.ReportPath)
}

// ComputeConfigHash computes a hash of index-relevant configuration.
// Changes to this hash indicate the index should be rebuilt.
func ComputeConfigHash(cfg *Config) string {
	relevant := struct {
		Fields       []Field `json:"fields"`
		ChunkSize    int     `json:"chunk_size"`
		ChunkOverlap int     `json:"chunk_overlap"`
		EmbProvider  string  `json:"emb_provider"`
		EmbModel     string  `json:"emb_model"`
	}{
		Fields:       cfg.Source.Fields,
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
