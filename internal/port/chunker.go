package port

import "retrieval/internal/domain"

type Splitter interface {
	Split(documents []string) []domain.Chunk
}
