package rag

import (
	"sort"
	"strings"
)

// QueryResult pairs one query with the documents retrieved for it.
type QueryResult struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
}

// excludedMetadata are fields that add noise to the model context.
var excludedMetadata = map[string]bool{
	"name":            true,
	"recipe_category": true,
	"description":     true,
}

// FormatDocs renders query results as one text blob for the model:
//
//	Query: <q>
//	<content>
//
//	Metadata:
//	<key: value lines>
//
//	---
//
// Queries without documents are skipped, so an empty retrieval formats to "".
// Excluded fields and "No Data Available" values are dropped. Metadata keys
// follow the recipe schema order, then the remaining keys alphabetically.
func FormatDocs(results []QueryResult) string {
	parts := make([]string, 0, len(results)*3)

	for _, r := range results {
		if len(r.Documents) == 0 {
			continue
		}
		parts = append(parts, "Query: "+r.Query+"\n")

		for _, doc := range r.Documents {
			lines := make([]string, 0, len(doc.Metadata))
			for _, key := range orderedMetadataKeys(doc.Metadata) {
				if excludedMetadata[key] {
					continue
				}
				value := metadataString(doc.Metadata[key])
				if value == NoDataAvailable {
					continue
				}
				lines = append(lines, key+": "+value)
			}
			parts = append(parts, doc.Content+"\n\nMetadata:\n"+strings.Join(lines, "\n"))
		}

		parts = append(parts, "\n---\n")
	}

	return strings.Join(parts, "\n")
}

func orderedMetadataKeys(metadata map[string]any) []string {
	keys := make([]string, 0, len(metadata))
	seen := make(map[string]bool, len(metadata))
	for _, attr := range RecipeMetadataSchema() {
		if _, ok := metadata[attr.Name]; ok {
			keys = append(keys, attr.Name)
			seen[attr.Name] = true
		}
	}

	var rest []string
	for k := range metadata {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
