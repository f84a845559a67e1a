package vectorindex

import (
	"errors"
	"math"
	"testing"

	"retrieval/internal/domain"
)

func TestFlatSearchNearest(t *testing.T) {
	idx, err := NewFlat([][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}})
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}

	got, err := idx.Search([]float32{0.1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Ordinal != 0 {
		t.Errorf("expected ordinal 0 first, got %d", got[0].Ordinal)
	}
	// B and C are equidistant from the query; the lower ordinal wins.
	if got[1].Ordinal != 1 {
		t.Errorf("expected ordinal 1 second, got %d", got[1].Ordinal)
	}
	if math.Abs(got[0].Distance-math.Sqrt(0.02)) > 1e-6 {
		t.Errorf("unexpected distance %f", got[0].Distance)
	}
}

func TestFlatSearchClampsK(t *testing.T) {
	idx, _ := NewFlat([][]float32{{1}, {3}, {2}})

	got, err := idx.Search([]float32{0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []int{0, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Ordinal != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i].Ordinal)
		}
	}
}

func TestFlatSearchNonPositiveK(t *testing.T) {
	idx, _ := NewFlat([][]float32{{1, 1}})

	for _, k := range []int{0, -3} {
		got, err := idx.Search([]float32{1, 1}, k)
		if err != nil || len(got) != 0 {
			t.Errorf("k=%d: expected empty result, got %v, %v", k, got, err)
		}
	}
}

func TestFlatEmpty(t *testing.T) {
	idx, err := NewFlat(nil)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	got, err := idx.Search([]float32{1, 2, 3}, 3)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result from empty index, got %v, %v", got, err)
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	if _, err := NewFlat([][]float32{{1, 2}, {1}}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for ragged vectors, got %v", err)
	}
	if _, err := NewFlat([][]float32{{}}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for zero-length vector, got %v", err)
	}

	idx, _ := NewFlat([][]float32{{1, 2}})
	if _, err := idx.Search([]float32{1, 2, 3}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for query, got %v", err)
	}
}
