package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/recipeflow/rag"
)

// Source column names of the recipe dataset.
const (
	ColumnID           = "RecipeId"
	ColumnName         = "Name"
	ColumnDescription  = "Description"
	ColumnCategory     = "RecipeCategory"
	ColumnKeywords     = "Keywords_string"
	ColumnIngredients  = "RecipeIngredientParts"
	ColumnInstructions = "RecipeInstructions"
	ColumnRating       = "AggregatedRating"
	ColumnReviewCount  = "ReviewCount"
	ColumnContent      = "Combined_Features"
)

// textColumns maps dataset columns to metadata attribute names.
var textColumns = []struct {
	column    string
	attribute string
}{
	{ColumnName, "name"},
	{ColumnDescription, "description"},
	{ColumnCategory, "recipe_category"},
	{ColumnKeywords, "keywords"},
	{ColumnIngredients, "recipe_ingredient_parts"},
	{ColumnInstructions, "recipe_instructions"},
}

// recordToDocument converts one dataset row. Rows without a rating, a review
// count or any content are skipped (ok=false).
func recordToDocument(fields map[string]string, index int) (rag.Document, bool) {
	content := strings.TrimSpace(fields[ColumnContent])
	if content == "" {
		return rag.Document{}, false
	}

	rating, err := strconv.ParseFloat(strings.TrimSpace(fields[ColumnRating]), 64)
	if err != nil {
		return rag.Document{}, false
	}
	reviews, err := strconv.ParseFloat(strings.TrimSpace(fields[ColumnReviewCount]), 64)
	if err != nil {
		return rag.Document{}, false
	}

	metadata := make(map[string]any, len(textColumns)+2)
	for _, c := range textColumns {
		v := strings.TrimSpace(fields[c.column])
		if v == "" {
			v = rag.NoDataAvailable
		}
		metadata[c.attribute] = v
	}
	metadata["aggregated_rating"] = rating
	metadata["review_count"] = int64(reviews)

	id := strings.TrimSpace(fields[ColumnID])
	if id == "" {
		id = fmt.Sprintf("recipe-%d", index)
	}
	return rag.Document{ID: id, Content: content, Metadata: metadata}, true
}
