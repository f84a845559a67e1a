package memstore

import (
	"errors"
	"testing"

	"retrieval/internal/domain"
)

func TestMemoryStoreMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Load(); !errors.Is(err, domain.ErrMissingIndex) {
		t.Errorf("expected ErrMissingIndex, got %v", err)
	}
	if _, err := s.Manifest(); !errors.Is(err, domain.ErrMissingIndex) {
		t.Errorf("expected ErrMissingIndex from Manifest, got %v", err)
	}
}

func TestMemoryStoreKeepsCopies(t *testing.T) {
	s := NewMemoryStore()
	snap := domain.Snapshot{
		Manifest: domain.Manifest{Model: "mock", Dimension: 2},
		Vectors:  [][]float32{{1, 2}, {3, 4}},
		Chunks:   []domain.Chunk{{Text: "a"}, {Text: "b"}},
	}
	if err := s.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap.Vectors[0][0] = 99
	snap.Chunks[0].Text = "changed"

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Manifest.Count != 2 {
		t.Errorf("expected count 2, got %d", loaded.Manifest.Count)
	}
	loaded.Vectors[1][1] = 42
	loaded.Chunks[1].Text = "changed"

	again, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if again.Vectors[0][0] != 1 || again.Vectors[1][1] != 4 {
		t.Errorf("stored vectors were modified: %v", again.Vectors)
	}
	if again.Chunks[0].Text != "a" || again.Chunks[1].Text != "b" {
		t.Errorf("stored chunks were modified: %+v", again.Chunks)
	}
}
