package usecase

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"retrieval/internal/adapter/embedding"
	"retrieval/internal/adapter/memstore"
	"retrieval/internal/adapter/store"
	"retrieval/internal/domain"
)

// tableEmbedder maps known texts to fixed vectors.
type tableEmbedder struct {
	model   string
	vectors map[string][]float32

	mu      sync.Mutex
	batches [][]string
}

func newTableEmbedder(model string, vectors map[string][]float32) *tableEmbedder {
	return &tableEmbedder{model: model, vectors: vectors}
}

func (e *tableEmbedder) Embed(texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) ModelName() string {
	return e.model
}

func abcdEmbedder() *tableEmbedder {
	return newTableEmbedder("table", map[string][]float32{
		"A":     {0, 0},
		"B":     {1, 0},
		"C":     {0, 1},
		"D":     {5, 5},
		"query": {0.1, 0.1},
		"far":   {6, 6},
	})
}

func abcdChunks() []domain.Chunk {
	return domain.TextChunks([]string{"A", "B", "C", "D"})
}

func TestVectorIndexNearestTwo(t *testing.T) {
	idx := NewVectorIndex(abcdEmbedder(), memstore.NewMemoryStore())
	require.NoError(t, idx.Build(abcdChunks()))

	got, err := idx.Search("query", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, StateBuilt, idx.State())
}

func TestVectorIndexSearchSizes(t *testing.T) {
	idx := NewVectorIndex(abcdEmbedder(), memstore.NewMemoryStore())
	require.NoError(t, idx.Build(abcdChunks()))

	for k, want := range map[int]int{-1: 0, 0: 0, 1: 1, 4: 4, 10: 4} {
		got, err := idx.Search("far", k)
		require.NoError(t, err)
		assert.Len(t, got, want, "k=%d", k)
	}

	got, err := idx.Search("far", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "B", "C", "A"}, got)
}

func TestVectorIndexBatches(t *testing.T) {
	emb := abcdEmbedder()
	var progress []int
	idx := NewVectorIndex(emb, memstore.NewMemoryStore(),
		WithBatchSize(3),
		WithProgress(func(done, total int) {
			assert.Equal(t, 4, total)
			progress = append(progress, done)
		}),
	)
	require.NoError(t, idx.Build(abcdChunks()))

	assert.Equal(t, [][]string{{"A", "B", "C"}, {"D"}}, emb.batches)
	assert.Equal(t, []int{3, 4}, progress)
}

func TestVectorIndexRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vector_store")
	st := store.NewBoltArtifactStore(dir, "dmv.index", "dmv_chunks.json")

	built := NewVectorIndex(abcdEmbedder(), st, WithConfigHash("cfg"))
	require.NoError(t, built.Build(abcdChunks()))
	before, err := built.SearchHits("query", 3)
	require.NoError(t, err)

	reloaded := NewVectorIndex(abcdEmbedder(), store.NewBoltArtifactStore(dir, "dmv.index", "dmv_chunks.json"))
	assert.Equal(t, StateEmpty, reloaded.State())
	assert.Equal(t, 0, reloaded.Len())

	after, err := reloaded.SearchHits("query", 3)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, StateLoaded, reloaded.State())
	assert.Equal(t, 4, reloaded.Len())
	assert.Equal(t, "cfg", reloaded.Manifest().ConfigHash)
	assert.Equal(t, "table", reloaded.Manifest().Model)
}

func TestVectorIndexRejectsEmptyInput(t *testing.T) {
	st := memstore.NewMemoryStore()
	idx := NewVectorIndex(abcdEmbedder(), st)

	assert.ErrorIs(t, idx.Build(nil), domain.ErrEmptyInput)
	assert.Equal(t, 0, st.Saves())
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	emb := newTableEmbedder("table", map[string][]float32{
		"x": {1, 2},
		"y": {1, 2, 3},
		"q": {1},
	})
	st := memstore.NewMemoryStore()
	idx := NewVectorIndex(emb, st)

	err := idx.Build(domain.TextChunks([]string{"x", "y"}))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, st.Saves(), "nothing is persisted after a failed build")

	require.NoError(t, idx.Build(domain.TextChunks([]string{"x"})))
	_, err = idx.Search("q", 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestVectorIndexEmbedderFailure(t *testing.T) {
	idx := NewVectorIndex(abcdEmbedder(), memstore.NewMemoryStore())
	require.NoError(t, idx.Build(abcdChunks()))

	_, err := idx.Search("unknown", 2)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestVectorIndexMissing(t *testing.T) {
	idx := NewVectorIndex(abcdEmbedder(), memstore.NewMemoryStore())

	_, err := idx.Search("query", 2)
	assert.ErrorIs(t, err, domain.ErrMissingIndex)
	assert.ErrorIs(t, idx.Load(), domain.ErrMissingIndex)
	assert.Equal(t, StateEmpty, idx.State())
}

func TestVectorIndexModelMismatch(t *testing.T) {
	st := memstore.NewMemoryStore()
	require.NoError(t, NewVectorIndex(abcdEmbedder(), st).Build(abcdChunks()))

	other := NewVectorIndex(embedding.NewHashEmbedder(2), st)
	assert.ErrorIs(t, other.Load(), domain.ErrModelMismatch)

	_, err := other.Search("query", 1)
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
}

func TestVectorIndexConcurrentSearch(t *testing.T) {
	idx := NewVectorIndex(abcdEmbedder(), memstore.NewMemoryStore())
	require.NoError(t, idx.Build(abcdChunks()))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := idx.Search("query", 1)
			if err == nil && (len(got) != 1 || got[0] != "A") {
				err = fmt.Errorf("unexpected result %v", got)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// gatedEmbedder blocks query embeddings until released.
type gatedEmbedder struct {
	*tableEmbedder
	entered chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 1 && texts[0] == "query" {
		e.entered <- struct{}{}
		<-e.release
	}
	return e.tableEmbedder.Embed(texts)
}

func TestVectorIndexBuildNotBlockedBySlowQuery(t *testing.T) {
	emb := &gatedEmbedder{
		tableEmbedder: abcdEmbedder(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	idx := NewVectorIndex(emb, memstore.NewMemoryStore())
	require.NoError(t, idx.Build(abcdChunks()))

	searched := make(chan error, 1)
	go func() {
		_, err := idx.Search("query", 1)
		searched <- err
	}()
	<-emb.entered

	built := make(chan error, 1)
	go func() { built <- idx.Build(domain.TextChunks([]string{"C", "D"})) }()

	select {
	case err := <-built:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(emb.release)
		t.Fatal("Build waited on a search that was still embedding its query")
	}

	close(emb.release)
	require.NoError(t, <-searched)
	assert.Equal(t, 2, idx.Len())
}
