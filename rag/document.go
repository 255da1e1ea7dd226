package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// NoDataAvailable marks a metadata value that carries no information.
const NoDataAvailable = "No Data Available"

// DocumentContentDescription describes Document.Content to the filter-construction LLM.
const DocumentContentDescription = "Detailed information about a recipe"

// Document 检索得到的文档，检索后不可修改
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`

	// Vector is the stored embedding when the store returned it.
	Vector []float64 `json:"-"`
}

// AttributeType is the declared type of a metadata attribute.
type AttributeType string

const (
	AttributeString  AttributeType = "string"
	AttributeFloat   AttributeType = "float"
	AttributeInteger AttributeType = "integer"
)

// AttributeInfo describes one metadata field to the filter-construction LLM.
type AttributeInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        AttributeType `json:"type"`
}

// RecipeMetadataSchema returns the fixed recipe metadata schema in display order.
func RecipeMetadataSchema() []AttributeInfo {
	return []AttributeInfo{
		{Name: "name", Description: "The name of the recipe", Type: AttributeString},
		{Name: "description", Description: "A brief description of the recipe", Type: AttributeString},
		{Name: "recipe_category", Description: "The category of the recipe, such as 'Quick Breads', 'Desserts', etc.", Type: AttributeString},
		{Name: "keywords", Description: "Keywords associated with the recipe", Type: AttributeString},
		{Name: "recipe_ingredient_parts", Description: "The ingredients required for the recipe", Type: AttributeString},
		{Name: "recipe_instructions", Description: "The instructions to prepare the recipe", Type: AttributeString},
		{Name: "aggregated_rating", Description: "The aggregated rating for the recipe", Type: AttributeFloat},
		{Name: "review_count", Description: "The number of reviews for the recipe", Type: AttributeInteger},
	}
}

// findAttribute looks up an attribute by name.
func findAttribute(schema []AttributeInfo, name string) (AttributeInfo, bool) {
	for _, a := range schema {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeInfo{}, false
}

// metadataString renders a metadata value the way it is shown to the model.
func metadataString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, metadataString(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// metadataNumber coerces numeric-looking metadata (numbers or numeric strings).
func metadataNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
