package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder: each lowercase word is hashed into
// one of dim buckets and the counts are L2-normalized. Texts sharing words
// land close together. Used by the "mock" provider and in tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Embed(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func (e *HashEmbedder) ModelName() string {
	return "mock"
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}
