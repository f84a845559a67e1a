package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"retrieval/internal/adapter/store"
	"retrieval/internal/domain"
	"retrieval/internal/port"
)

// BuildUseCase runs ingestion, chunking and indexing, and decides when a
// persisted index can be reused.
type BuildUseCase struct {
	source     port.DocumentSource
	splitter   port.Splitter
	index      *VectorIndex
	artifacts  port.ArtifactStore
	sourcePath string
	configHash string
	logger     *slog.Logger
}

func NewBuildUseCase(
	source port.DocumentSource,
	splitter port.Splitter,
	index *VectorIndex,
	artifacts port.ArtifactStore,
	sourcePath string,
	configHash string,
	logger *slog.Logger,
) *BuildUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildUseCase{
		source:     source,
		splitter:   splitter,
		index:      index,
		artifacts:  artifacts,
		sourcePath: sourcePath,
		configHash: configHash,
		logger:     logger,
	}
}

// BuildResult contains the results of an Ensure or Build call.
type BuildResult struct {
	Documents int
	Chunks    int
	Rebuilt   bool
	Reason    string
	Duration  time.Duration
}

// Build always rebuilds from the source.
func (u *BuildUseCase) Build() (*BuildResult, error) {
	start := time.Now()

	docs, err := u.source.Load(u.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents in %s", domain.ErrMissingSource, u.sourcePath)
	}

	chunks := u.splitter.Split(docs)
	u.logger.Info("documents chunked", "documents", len(docs), "chunks", len(chunks))

	if err := u.index.Build(chunks); err != nil {
		return nil, err
	}

	return &BuildResult{
		Documents: len(docs),
		Chunks:    len(chunks),
		Rebuilt:   true,
		Duration:  time.Since(start),
	}, nil
}

// Ensure loads the persisted index when it is usable and rebuilds it when it
// is missing, stale or damaged. force skips the checks. A model mismatch or
// an index from a newer schema is returned as an error unless forced.
func (u *BuildUseCase) Ensure(force bool) (*BuildResult, error) {
	reason := "rebuild requested"
	if !force {
		var ok bool
		var err error
		reason, ok, err = u.reusable()
		if err != nil {
			return nil, err
		}
		if ok {
			return &BuildResult{Chunks: u.index.Len()}, nil
		}
	}

	u.logger.Info("building index", "reason", reason, "source", u.sourcePath)
	result, err := u.Build()
	if err != nil {
		return nil, err
	}
	result.Reason = reason
	return result, nil
}

func (u *BuildUseCase) reusable() (string, bool, error) {
	manifest, err := u.artifacts.Manifest()
	switch {
	case errors.Is(err, domain.ErrMissingIndex):
		return "no index found", false, nil
	case errors.Is(err, domain.ErrIndexInconsistent):
		u.logger.Warn("index artifacts damaged", "error", err)
		return "index artifacts damaged", false, nil
	case err != nil:
		return "", false, err
	}

	if manifest.SchemaVersion > store.CurrentSchemaVersion {
		return "", false, fmt.Errorf("%w: index schema v%d", domain.ErrUnsupportedSchema, manifest.SchemaVersion)
	}
	if check := store.CheckMigration(manifest, u.configHash); check.NeedsRebuild {
		return check.Reason, false, nil
	}

	err = u.index.Load()
	switch {
	case err == nil:
		return "", true, nil
	case errors.Is(err, domain.ErrMissingIndex):
		return "no index found", false, nil
	case errors.Is(err, domain.ErrIndexInconsistent):
		u.logger.Warn("index artifacts damaged", "error", err)
		return "index artifacts damaged", false, nil
	default:
		return "", false, err
	}
}
