package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BaSui01/recipeflow/rag"
)

// JSONLoader loads recipe records from JSON (array or single object) and JSONL files.
type JSONLoader struct{}

// NewJSONLoader creates a JSONLoader.
func NewJSONLoader() *JSONLoader {
	return &JSONLoader{}
}

// Load reads a JSON or JSONL file and returns Documents.
func (l *JSONLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		items []map[string]any
		err   error
	)
	if strings.ToLower(filepath.Ext(source)) == ".jsonl" {
		items, err = readJSONL(source)
	} else {
		items, err = readJSON(source)
	}
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(items))
	for i, obj := range items {
		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			fields[k] = stringify(v)
		}
		if doc, ok := recordToDocument(fields, i); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// readJSON handles .json files (single object or array).
func readJSON(source string) ([]map[string]any, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("json loader: %w", err)
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, nil
	}

	// Try array first, then single object.
	if data[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("json loader: parsing array in %s: %w", source, err)
		}
		return items, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("json loader: parsing object in %s: %w", source, err)
	}
	return []map[string]any{obj}, nil
}

// readJSONL handles .jsonl files (one JSON object per line).
func readJSONL(source string) ([]map[string]any, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("jsonl loader: %w", err)
	}
	defer f.Close()

	var items []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("jsonl loader: line %d in %s: %w", lineNum, source, err)
		}
		items = append(items, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl loader: reading %s: %w", source, err)
	}
	return items, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// SupportedTypes returns the extensions handled by JSONLoader.
func (l *JSONLoader) SupportedTypes() []string {
	return []string{".json", ".jsonl"}
}
