package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"retrieval/internal/domain"
	"retrieval/internal/port"
)

// Field is one source column folded into a document. An empty Label emits
// the value without a heading.
type Field struct {
	Name  string
	Label string
}

// CSVIngestor turns rows of one or more CSV files into deduplicated
// composite documents.
type CSVIngestor struct {
	fields   []Field
	resolver port.SourceResolver
	logger   *slog.Logger
}

func NewCSVIngestor(fields []Field, resolver port.SourceResolver, logger *slog.Logger) *CSVIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVIngestor{fields: fields, resolver: resolver, logger: logger}
}

// Load reads every file matched by sourcePath in lexical order. A missing
// source yields no documents and no error; deduplication spans all files.
func (g *CSVIngestor) Load(sourcePath string) ([]string, error) {
	files, err := g.resolver.Resolve(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source %s: %w", sourcePath, err)
	}
	if len(files) == 0 {
		g.logger.Warn("ingestion source not found", "path", sourcePath)
		return nil, nil
	}

	seen := make(map[string]struct{})
	var docs []string
	for _, path := range files {
		before := len(docs)
		rows := 0
		err := eachRecord(path, func(header map[string]int, record []string) error {
			rows++
			doc := g.compose(header, record)
			if doc == "" {
				return nil
			}
			if _, ok := seen[doc]; ok {
				return nil
			}
			seen[doc] = struct{}{}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
		g.logger.Debug("ingested source file", "path", path, "rows", rows, "documents", len(docs)-before)
	}
	return docs, nil
}

// compose joins the non-blank configured fields of one record.
func (g *CSVIngestor) compose(header map[string]int, record []string) string {
	parts := make([]string, 0, len(g.fields))
	for _, f := range g.fields {
		col, ok := header[f.Name]
		if !ok || col >= len(record) {
			continue
		}
		value := strings.TrimSpace(record[col])
		if value == "" {
			continue
		}
		if f.Label != "" {
			value = f.Label + "\n" + value
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "\n\n")
}

// ReadTable loads the files matched by pattern into one table. All files
// must share the first file's header.
func ReadTable(resolver port.SourceResolver, pattern string) (domain.Table, error) {
	files, err := resolver.Resolve(pattern)
	if err != nil {
		return domain.Table{}, err
	}
	if len(files) == 0 {
		return domain.Table{}, fmt.Errorf("%w: %s", domain.ErrMissingSource, pattern)
	}

	var table domain.Table
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return domain.Table{}, err
		}
		header, rows, err := readAll(f)
		f.Close()
		if err != nil {
			return domain.Table{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if header == nil {
			continue
		}
		if table.Header == nil {
			table.Header = header
		} else if !slices.Equal(table.Header, header) {
			return domain.Table{}, fmt.Errorf("header of %s differs from %s", path, files[0])
		}
		table.Rows = append(table.Rows, rows...)
	}
	return table, nil
}

func readAll(r io.Reader) ([]string, [][]string, error) {
	reader := newReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	header = slices.Clone(header)
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		row := make([]string, len(header))
		copy(row, record)
		rows = append(rows, row)
	}
	return header, rows, nil
}

func eachRecord(path string, fn func(header map[string]int, record []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := newReader(f)
	names, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(names))
	for i, name := range names {
		name = strings.TrimPrefix(name, "\ufeff")
		if _, dup := header[name]; !dup {
			header[name] = i
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := fn(header, record); err != nil {
			return err
		}
	}
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true
	return reader
}
