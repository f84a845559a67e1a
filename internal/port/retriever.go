package port

// Retriever returns the chunk texts most relevant to a query, nearest first.
type Retriever interface {
	Search(query string, k int) ([]string, error)
}
