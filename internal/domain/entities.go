package domain

import "time"

// NoAnswer is returned by the answer generator when the model produced no text.
const NoAnswer = "No answer was produced by the model."

// ChunkSource tags a chunk with the document it was cut from.
type ChunkSource struct {
	Document int `json:"document"` // ordinal of the document in its ingestion pass
	Offset   int `json:"offset"`   // rune offset of the chunk inside the document
}

type Chunk struct {
	Text   string
	Source ChunkSource
}

// TextChunks wraps plain strings as chunks without provenance.
func TextChunks(texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Text: t, Source: ChunkSource{Document: i}}
	}
	return chunks
}

// Texts returns the chunk texts in order.
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

type Hit struct {
	Ordinal  int         `json:"ordinal"`
	Text     string      `json:"text"`
	Distance float64     `json:"distance"`
	Source   ChunkSource `json:"source"`
}

// Manifest describes one persisted index build.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	BuildID       string    `json:"build_id"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	Count         int       `json:"count"`
	ChunksSHA256  string    `json:"chunks_sha256"`
	ConfigHash    string    `json:"config_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot is the unit persisted and reloaded by an artifact store:
// vectors[i] always belongs to chunks[i].
type Snapshot struct {
	Manifest Manifest
	Vectors  [][]float32
	Chunks   []Chunk
}

type Table struct {
	Header []string
	Rows   [][]string
}

func (t Table) Len() int {
	return len(t.Rows)
}

type Fractions struct {
	Train      float64 `yaml:"train"`
	Validation float64 `yaml:"validation"`
	Test       float64 `yaml:"test"`
}

type SliceResult struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Available   int     `json:"available"`
	Planned     int     `json:"planned"`
	Written     int     `json:"written"`
	Bytes       int64   `json:"bytes"`
	AvgRowBytes float64 `json:"avg_row_bytes"`
}

// Partial reports that the byte budget stopped the writer before the plan.
func (s SliceResult) Partial() bool {
	return s.Written < s.Planned
}

type PartitionResult struct {
	SourceRows int           `json:"source_rows"`
	Scale      int           `json:"scale"`
	Slices     []SliceResult `json:"slices"`
}

type Answer struct {
	Query    string   `json:"query"`
	Text     string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

type EvalSample struct {
	Question string
	Gold     string
	Predict  string
	F1       float64
	EM       float64
	Contexts []string
}

type EvalReport struct {
	Samples    []EvalSample
	AvgF1      float64
	AvgEM      float64
	ReportPath string
}
