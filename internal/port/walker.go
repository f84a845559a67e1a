package port

type SourceResolver interface {
	// Resolve expands a file path or glob into existing files, sorted.
	Resolve(pattern string) ([]string, error)
}

// DocumentSource produces deduplicated composite documents from a source.
type DocumentSource interface {
	Load(sourcePath string) ([]string, error)
}
