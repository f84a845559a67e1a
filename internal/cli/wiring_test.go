package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"retrieval/config"
)

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	csv := "document,answers\n" +
		"Renew your license online at the DMV portal.,renew online\n" +
		"Vehicle registration requires proof of insurance.,insurance\n" +
		"Renew your license online at the DMV portal.,renew online\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.csv"), []byte(csv), 0644))

	cfg := config.DefaultConfig()
	cfg.Source.Path = "corpus.csv"
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 64
	cfg.Resolve(dir)
	return cfg
}

func TestNewEmbedderProviders(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Embedding.Provider = "mock"
	e, err := newEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", e.ModelName())

	cfg.Embedding.Provider = "carrier-pigeon"
	_, err = newEmbedder(cfg)
	assert.Error(t, err)

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKeyEnv = "RAG_TEST_MISSING_KEY"
	_, err = newEmbedder(cfg)
	assert.Error(t, err)
}

func TestPipelineBuildsThenReuses(t *testing.T) {
	cfg := mockConfig(t)

	p, err := newPipeline(cfg, nil)
	require.NoError(t, err)
	result, err := p.ensure(false)
	require.NoError(t, err)
	assert.True(t, result.Rebuilt)
	assert.Equal(t, 2, result.Documents, "duplicate rows fold into one document")
	assert.FileExists(t, p.artifacts.IndexPath())
	assert.FileExists(t, p.artifacts.ChunksPath())

	p2, err := newPipeline(cfg, nil)
	require.NoError(t, err)
	result, err = p2.ensure(false)
	require.NoError(t, err)
	assert.False(t, result.Rebuilt)

	retriever, queryCache := p2.retriever(cfg)
	texts, err := retriever.Search("renew license online", 1)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Renew your license")

	_, err = retriever.Search("renew license online", 1)
	require.NoError(t, err)
	hits, _ := queryCache.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestNewLogger(t *testing.T) {
	assert.True(t, newLogger("warn", false).Enabled(t.Context(), 4))
	assert.False(t, newLogger("warn", false).Enabled(t.Context(), 0))
	assert.True(t, newLogger("error", true).Enabled(t.Context(), -4), "verbose forces debug")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42e9))
	assert.Equal(t, "2m5s", formatDuration(125e9))
	assert.Equal(t, "1h1m", formatDuration(3660e9))
}
