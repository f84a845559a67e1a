package port

import "retrieval/internal/domain"

// ArtifactStore persists an index snapshot as a single logical unit.
type ArtifactStore interface {
	// Save overwrites any previous snapshot.
	Save(snap domain.Snapshot) error

	// Load returns domain.ErrMissingIndex when nothing complete is stored.
	Load() (domain.Snapshot, error)

	// Manifest reads only the build description.
	Manifest() (domain.Manifest, error)

	// Location describes where the artifacts live, for logs.
	Location() string
}
