package port

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, in input order.
	Embed(texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	// Indexes record it so a query is never embedded by a different model.
	ModelName() string
}
