package memstore

import (
	"sync"

	"retrieval/internal/adapter/store"
	"retrieval/internal/domain"
)

// MemoryStore holds one index snapshot in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snap  domain.Snapshot
	saved bool
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap = copySnapshot(snap)
	snap.Manifest.Count = len(snap.Chunks)
	snap.Manifest.SchemaVersion = store.CurrentSchemaVersion

	s.snap = snap
	s.saved = true
	s.saves++
	return nil
}

func (s *MemoryStore) Load() (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return domain.Snapshot{}, domain.ErrMissingIndex
	}
	return copySnapshot(s.snap), nil
}

// copySnapshot detaches the vectors and chunks from the caller's slices.
func copySnapshot(snap domain.Snapshot) domain.Snapshot {
	vectors := make([][]float32, len(snap.Vectors))
	for i, v := range snap.Vectors {
		vectors[i] = append([]float32(nil), v...)
	}
	snap.Vectors = vectors
	snap.Chunks = append([]domain.Chunk(nil), snap.Chunks...)
	return snap
}

func (s *MemoryStore) Manifest() (domain.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return domain.Manifest{}, domain.ErrMissingIndex
	}
	return s.snap.Manifest, nil
}

func (s *MemoryStore) Location() string {
	return "memory"
}

// Saves counts completed Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
