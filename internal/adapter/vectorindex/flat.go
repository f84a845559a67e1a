package vectorindex

import (
	"fmt"
	"math"
	"sync"

	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/blas/gonum"
	"retrieval/internal/domain"
)

var blas = gonum.Implementation{}

var diffPool = sync.Pool{
	New: func() any {
		s := make([]float32, 0, 1024)
		return &s
	},
}

// Neighbor is one search result: the ordinal of a stored vector and its
// Euclidean distance to the query.
type Neighbor struct {
	Ordinal  int
	Distance float64
}

// neighborLess orders by distance, then by ordinal so equal distances stay
// distinct and deterministic.
func neighborLess(a, b Neighbor) bool {
	if a.Distance < b.Distance {
		return true
	}
	if a.Distance > b.Distance {
		return false
	}
	return a.Ordinal < b.Ordinal
}

// Flat is an exact L2 index. Every search scans every vector.
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat builds an index over vectors, which must all share one non-zero
// dimension. The slice is referenced, not copied.
func NewFlat(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return &Flat{}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector at 0", domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dims, expected %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return &Flat{dim: dim, vectors: vectors}, nil
}

func (f *Flat) Len() int {
	return len(f.vectors)
}

func (f *Flat) Dim() int {
	return f.dim
}

// Search returns the min(k, Len()) nearest vectors in ascending distance.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if k > len(f.vectors) {
		k = len(f.vectors)
	}
	if k <= 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", domain.ErrDimensionMismatch, len(query), f.dim)
	}

	diffPtr := diffPool.Get().(*[]float32)
	defer diffPool.Put(diffPtr)
	if cap(*diffPtr) < f.dim {
		*diffPtr = make([]float32, f.dim)
	}
	diff := (*diffPtr)[:f.dim]

	best := btree.NewBTreeG[Neighbor](neighborLess)
	for i, v := range f.vectors {
		copy(diff, v)
		blas.Saxpy(f.dim, -1, query, 1, diff, 1)
		d := float64(blas.Sdot(f.dim, diff, 1, diff, 1))

		best.Set(Neighbor{Ordinal: i, Distance: d})
		if best.Len() > k {
			best.PopMax()
		}
	}

	results := make([]Neighbor, 0, k)
	best.Scan(func(n Neighbor) bool {
		n.Distance = math.Sqrt(n.Distance)
		results = append(results, n)
		return true
	})
	return results, nil
}
