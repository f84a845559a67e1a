package chunker

import (
	"strings"
	"unicode/utf8"

	"retrieval/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators go from paragraph to line to word; "" is the hard cut.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits documents into overlapping windows of at most
// chunkSize characters, breaking at the coarsest separator that fits.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
}

// Split chunks every document and flattens the result. Each chunk records
// the document ordinal and its rune offset inside that document.
func (c *RecursiveChunker) Split(documents []string) []domain.Chunk {
	var chunks []domain.Chunk
	for docIdx, doc := range documents {
		cursor := 0
		for _, text := range c.SplitText(doc) {
			offset := cursor
			if pos := strings.Index(doc[cursor:], text); pos >= 0 {
				offset = cursor + pos
				cursor = offset + 1
			}
			chunks = append(chunks, domain.Chunk{
				Text: text,
				Source: domain.ChunkSource{
					Document: docIdx,
					Offset:   utf8.RuneCountInString(doc[:offset]),
				},
			})
		}
	}
	return chunks
}

// SplitText chunks a single document.
func (c *RecursiveChunker) SplitText(text string) []string {
	return c.split(text, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			next = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeep(text, separator) {
		if runeLen(piece) < c.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = appendTrimmed(final, piece)
		} else {
			final = append(final, c.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// splitKeep cuts text at every separator and keeps each separator at the
// start of the piece that follows it, so the pieces concatenate back to text.
// Empty pieces are dropped. The empty separator cuts between runes.
func splitKeep(text, separator string) []string {
	if separator == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, p := range parts[1:] {
		pieces = append(pieces, separator+p)
	}
	return pieces
}

// merge joins consecutive pieces back into windows no longer than chunkSize
// and carries up to overlap characters of trailing pieces into the next
// window. Pieces already carry their separators, so every window is a
// contiguous run of the source text.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var docs, current []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.chunkSize && len(current) > 0 {
			docs = appendTrimmed(docs, strings.Join(current, ""))
			for total > c.overlap || (total > 0 && total+n > c.chunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		total += n
		current = append(current, p)
	}
	if len(current) > 0 {
		docs = appendTrimmed(docs, strings.Join(current, ""))
	}
	return docs
}

func appendTrimmed(dst []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		dst = append(dst, s)
	}
	return dst
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
