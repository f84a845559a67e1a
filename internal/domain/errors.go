package domain

import "errors"

// Recoverable conditions: orchestration treats these as "not ready yet, building now".
var (
	// ErrMissingSource indicates the ingestion source is absent or yielded no documents.
	ErrMissingSource = errors.New("ingestion source missing")

	// ErrMissingIndex indicates one or both persisted index artifacts are absent.
	ErrMissingIndex = errors.New("index not built")
)

// Contract violations and corrupt state.
var (
	// ErrDimensionMismatch indicates embeddings of inconsistent length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyInput indicates a build was requested with zero chunks.
	ErrEmptyInput = errors.New("no chunks to index")

	// ErrModelMismatch indicates the index was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrIndexInconsistent indicates the index file and chunk file do not belong together.
	ErrIndexInconsistent = errors.New("index artifacts inconsistent")

	// ErrUnsupportedSchema indicates an index written by a newer version.
	ErrUnsupportedSchema = errors.New("unsupported index schema")

	// ErrInvalidFractions indicates partition fractions that cannot be honored.
	ErrInvalidFractions = errors.New("invalid partition fractions")

	// ErrNotReady indicates the retrieval system has not finished building.
	ErrNotReady = errors.New("not ready")
)
