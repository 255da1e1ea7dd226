package tools

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/recipeflow/types"
)

// queriesSchema is the input schema shared by both retrieval tools.
func queriesSchema(description string) json.RawMessage {
	return types.NewObjectSchema().
		AddProperty("queries", types.NewArraySchema(types.NewStringSchema()).WithDescription(description)).
		AddRequired("queries").
		Raw()
}

// parseQueries reads the {"queries": [...]} argument object. A bare string
// is accepted as a single query. Duplicates are dropped, first one wins.
func parseQueries(tool string, raw json.RawMessage) ([]string, error) {
	var args map[string]json.RawMessage
	if len(raw) == 0 {
		return nil, argumentError(tool, "missing arguments")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, argumentError(tool, "arguments are not an object").WithCause(err)
	}

	value, ok := args["queries"]
	if !ok {
		return nil, argumentError(tool, `missing required argument "queries"`)
	}

	var queries []string
	if err := json.Unmarshal(value, &queries); err != nil {
		var single string
		if json.Unmarshal(value, &single) != nil {
			return nil, argumentError(tool, `"queries" must be a list of strings`).WithCause(err)
		}
		queries = []string{single}
	}

	seen := make(map[string]bool, len(queries))
	out := queries[:0]
	for _, q := range queries {
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out, nil
}

func argumentError(tool, msg string) *types.Error {
	return types.NewError(types.ErrToolArgument, fmt.Sprintf("%s: %s", tool, msg))
}
