package usecase

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"retrieval/internal/adapter/vectorindex"
	"retrieval/internal/domain"
	"retrieval/internal/port"
)

// IndexState tracks whether an index is resident. Once Built or Loaded it
// never returns to Empty.
type IndexState int

const (
	StateEmpty IndexState = iota
	StateBuilt
	StateLoaded
)

func (s IndexState) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

const DefaultBatchSize = 64

// VectorIndex embeds chunks, persists them through an ArtifactStore and
// answers exact nearest-neighbour queries.
type VectorIndex struct {
	embedder   port.Embedder
	store      port.ArtifactStore
	batchSize  int
	configHash string
	progress   func(done, total int)
	logger     *slog.Logger

	buildMu sync.Mutex

	mu       sync.RWMutex
	state    IndexState
	flat     *vectorindex.Flat
	chunks   []domain.Chunk
	manifest domain.Manifest
}

type IndexOption func(*VectorIndex)

func WithBatchSize(n int) IndexOption {
	return func(v *VectorIndex) {
		if n > 0 {
			v.batchSize = n
		}
	}
}

// WithConfigHash stamps builds with the hash of the settings that produced them.
func WithConfigHash(hash string) IndexOption {
	return func(v *VectorIndex) { v.configHash = hash }
}

// WithProgress reports embedded chunk counts after every batch.
func WithProgress(fn func(done, total int)) IndexOption {
	return func(v *VectorIndex) { v.progress = fn }
}

func WithLogger(logger *slog.Logger) IndexOption {
	return func(v *VectorIndex) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewVectorIndex(embedder port.Embedder, store port.ArtifactStore, opts ...IndexOption) *VectorIndex {
	v := &VectorIndex{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Build embeds chunks, persists both artifacts and makes the new index
// resident. Searches keep hitting the previous index until the swap.
func (v *VectorIndex) Build(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyInput
	}

	v.buildMu.Lock()
	defer v.buildMu.Unlock()

	start := time.Now()
	texts := domain.Texts(chunks)
	vectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += v.batchSize {
		end := min(i+v.batchSize, len(texts))
		batch, err := v.embedder.Embed(texts[i:end])
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", i, end-1, err)
		}
		if len(batch) != end-i {
			return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", domain.ErrDimensionMismatch, len(batch), end-i)
		}
		vectors = append(vectors, batch...)
		if v.progress != nil {
			v.progress(end, len(texts))
		}
	}

	flat, err := vectorindex.NewFlat(vectors)
	if err != nil {
		return err
	}

	chunks = append([]domain.Chunk(nil), chunks...)
	manifest := domain.Manifest{
		BuildID:    uuid.NewString(),
		Model:      v.embedder.ModelName(),
		Dimension:  flat.Dim(),
		Count:      len(chunks),
		ConfigHash: v.configHash,
		CreatedAt:  time.Now().UTC(),
	}

	if err := v.store.Save(domain.Snapshot{Manifest: manifest, Vectors: vectors, Chunks: chunks}); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	v.mu.Lock()
	v.flat = flat
	v.chunks = chunks
	v.manifest = manifest
	v.state = StateBuilt
	v.mu.Unlock()

	v.logger.Info("index built",
		"chunks", len(chunks),
		"dimension", flat.Dim(),
		"model", manifest.Model,
		"build_id", manifest.BuildID,
		"location", v.store.Location(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Load replaces the resident index with the persisted one.
func (v *VectorIndex) Load() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadLocked()
}

func (v *VectorIndex) loadLocked() error {
	snap, err := v.store.Load()
	if err != nil {
		return err
	}
	if model := v.embedder.ModelName(); snap.Manifest.Model != model {
		return fmt.Errorf("%w: index built with %q, embedder is %q", domain.ErrModelMismatch, snap.Manifest.Model, model)
	}

	flat, err := vectorindex.NewFlat(snap.Vectors)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexInconsistent, err)
	}
	if flat.Len() > 0 && flat.Dim() != snap.Manifest.Dimension {
		return fmt.Errorf("%w: vectors have %d dims, manifest says %d", domain.ErrIndexInconsistent, flat.Dim(), snap.Manifest.Dimension)
	}
	if flat.Len() != len(snap.Chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrIndexInconsistent, flat.Len(), len(snap.Chunks))
	}

	v.flat = flat
	v.chunks = snap.Chunks
	v.manifest = snap.Manifest
	v.state = StateLoaded

	v.logger.Info("index loaded",
		"chunks", len(snap.Chunks),
		"model", snap.Manifest.Model,
		"build_id", snap.Manifest.BuildID,
		"location", v.store.Location(),
	)
	return nil
}

func (v *VectorIndex) ensureLoaded() error {
	v.mu.RLock()
	state := v.state
	v.mu.RUnlock()
	if state != StateEmpty {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateEmpty {
		return nil
	}
	return v.loadLocked()
}

// Search returns the texts of the k chunks nearest to query.
func (v *VectorIndex) Search(query string, k int) ([]string, error) {
	hits, err := v.SearchHits(query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// SearchHits is Search with ordinals, distances and provenance. The index
// is loaded from the store on first use.
func (v *VectorIndex) SearchHits(query string, k int) ([]domain.Hit, error) {
	if err := v.ensureLoaded(); err != nil {
		return nil, err
	}

	if k <= 0 || v.Len() == 0 {
		return []domain.Hit{}, nil
	}

	// The query is embedded without holding the lock so a slow embedder
	// never stalls a concurrent Build.
	emb, err := v.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(emb) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrDimensionMismatch, len(emb))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	k = min(k, len(v.chunks))
	if k <= 0 {
		return []domain.Hit{}, nil
	}

	neighbors, err := v.flat.Search(emb[0], k)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, len(neighbors))
	for i, n := range neighbors {
		c := v.chunks[n.Ordinal]
		hits[i] = domain.Hit{
			Ordinal:  n.Ordinal,
			Text:     c.Text,
			Distance: n.Distance,
			Source:   c.Source,
		}
	}
	return hits, nil
}

// Len is the number of indexed chunks; 0 until built or loaded.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.chunks)
}

func (v *VectorIndex) State() IndexState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *VectorIndex) Manifest() domain.Manifest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.manifest
}

func (v *VectorIndex) ModelName() string {
	return v.embedder.ModelName()
}
