package tools

import (
	"github.com/BaSui01/recipeflow/rag"
	"go.uber.org/zap"
)

// Toolbox holds the long-lived tool collaborators and builds the
// per-request executor bound to that request's retriever.
type Toolbox struct {
	RecipeDB       RecipeDBConfig
	WebSearch      WebSearchToolConfig
	MaxConcurrency int
	Observer       Observer
	Logger         *zap.Logger
}

// Executor registers query_food_recipe_vector_db against retriever and
// google_web_search. Both are always advertised; without a search provider
// web search calls come back as is_error results.
func (tb *Toolbox) Executor(retriever rag.Retriever) *Executor {
	logger := tb.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := NewRegistry(logger)
	// 名称固定且只注册一次，Register 不会失败
	_ = registry.Register(RecipeDBToolName, NewRecipeDBTool(retriever, tb.RecipeDB, logger), RecipeDBMetadata())
	_ = registry.Register(WebSearchToolName, NewWebSearchTool(tb.WebSearch, logger), WebSearchMetadata())

	return NewExecutor(registry, logger,
		WithMaxConcurrency(tb.MaxConcurrency),
		WithObserver(tb.Observer))
}
