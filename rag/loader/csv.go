package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/BaSui01/recipeflow/rag"
)

// CSVLoaderConfig configures the CSV loader.
type CSVLoaderConfig struct {
	// Delimiter is the field separator. Defaults to ','.
	Delimiter rune
}

// CSVLoader loads recipe CSV exports. The first row is the header.
type CSVLoader struct {
	config CSVLoaderConfig
}

// NewCSVLoader creates a CSVLoader with the given config.
func NewCSVLoader(config CSVLoaderConfig) *CSVLoader {
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	return &CSVLoader{config: config}
}

// Load reads a CSV file and returns one Document per usable row.
func (l *CSVLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("csv loader: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = l.config.Delimiter
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv loader: parsing %s: %w", source, err)
	}

	if len(records) < 2 {
		// Only header or empty file.
		return []rag.Document{}, nil
	}

	header := records[0]
	docs := make([]rag.Document, 0, len(records)-1)
	for i, row := range records[1:] {
		fields := make(map[string]string, len(header))
		for idx, name := range header {
			if idx < len(row) {
				fields[name] = row[idx]
			}
		}
		if doc, ok := recordToDocument(fields, i); ok {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

// SupportedTypes returns the extensions handled by CSVLoader.
func (l *CSVLoader) SupportedTypes() []string {
	return []string{".csv"}
}
