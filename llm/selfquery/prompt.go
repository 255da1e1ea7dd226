package selfquery

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/recipeflow/rag"
)

const systemPrompt = `You translate a user's search request into a structured query for a vector store.
Reply with a single JSON object and nothing else.`

const queryFormat = `The JSON object has these fields:

  "query":  the text to match against document contents. Leave out anything already expressed by the filter.
  "filter": a filter over document metadata, or "NO_FILTER" when none applies.
  "limit":  the number of documents requested, or 0 when the user did not ask for a number.

A comparison looks like {"comparator": C, "attribute": A, "value": V}
where C is one of eq, ne, gt, gte, lt, lte, contain, like, in, nin.
An operation looks like {"operator": O, "arguments": [...]}
where O is one of and, or, not.

Only use the attributes listed below, with values of their declared type.
Use "contain" for free-text attributes such as ingredients or keywords.`

// buildPrompt renders the user turn sent to the filter-construction model.
func buildPrompt(query, contentDescription string, schema []rag.AttributeInfo) string {
	attrs := make(map[string]map[string]string, len(schema))
	for _, a := range schema {
		attrs[a.Name] = map[string]string{"type": string(a.Type), "description": a.Description}
	}
	// encoding/json sorts map keys, so the rendering is stable
	attrJSON, _ := json.MarshalIndent(attrs, "", "  ")

	var b strings.Builder
	b.WriteString(queryFormat)
	b.WriteString("\n\nData source:\n")
	b.WriteString(`{"content": "` + contentDescription + `", "attributes": `)
	b.Write(attrJSON)
	b.WriteString("}\n\nExample:\n")
	b.WriteString(`User query: three highly rated desserts with chocolate` + "\n")
	b.WriteString(`Structured request: {"query": "chocolate dessert", "filter": {"operator": "and", "arguments": [` +
		`{"comparator": "eq", "attribute": "recipe_category", "value": "Desserts"}, ` +
		`{"comparator": "gte", "attribute": "aggregated_rating", "value": 4.5}]}, "limit": 3}` + "\n\n")
	b.WriteString("User query: " + query + "\nStructured request:")
	return b.String()
}
