package tools

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/recipeflow/llm/tokenizer"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecipeDBToolName is the recipe vector store tool advertised to the model.
const RecipeDBToolName = "query_food_recipe_vector_db"

// RecipeDBConfig 配置菜谱向量库工具
type RecipeDBConfig struct {
	MaxConcurrency  int                 // 单次调用内并发检索的查询数
	MaxOutputTokens int                 // 输出 token 上限，0 表示不截断
	Tokenizer       tokenizer.Tokenizer // MaxOutputTokens > 0 时使用
}

// RecipeDBMetadata returns the schema of the recipe vector store tool.
func RecipeDBMetadata() ToolMetadata {
	return ToolMetadata{
		Schema: types.ToolSchema{
			Name: RecipeDBToolName,
			Description: "Search the recipe database for recipes relevant to the user's request. " +
				"Pass one or more short search queries; each query is searched independently and the " +
				"matching recipes are returned with their ingredients, instructions, keywords and ratings.",
			Parameters: queriesSchema(
				"Independent search queries, e.g. dish names, ingredients or dietary constraints"),
		},
	}
}

// NewRecipeDBTool returns the handler for query_food_recipe_vector_db. Each
// query runs concurrently against retriever. A failing query is logged and
// left out of the output; the rest still format.
func NewRecipeDBTool(retriever rag.Retriever, config RecipeDBConfig, logger *zap.Logger) ToolFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", RecipeDBToolName))
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}

	return func(ctx context.Context, args json.RawMessage) (string, error) {
		queries, err := parseQueries(RecipeDBToolName, args)
		if err != nil {
			return "", err
		}

		results := make([]rag.QueryResult, len(queries))
		var g errgroup.Group
		g.SetLimit(config.MaxConcurrency)
		for i, q := range queries {
			g.Go(func() error {
				docs, err := retriever.Retrieve(ctx, q)
				if err != nil {
					logger.Error("recipe query failed", zap.String("query", q), zap.Error(err))
					results[i] = rag.QueryResult{Query: q}
					return nil
				}
				results[i] = rag.QueryResult{Query: q, Documents: docs}
				return nil
			})
		}
		_ = g.Wait()

		out := rag.FormatDocs(results)
		if config.MaxOutputTokens > 0 && config.Tokenizer != nil {
			truncated, err := config.Tokenizer.Truncate(out, config.MaxOutputTokens)
			if err != nil {
				logger.Warn("truncate recipe output failed", zap.Error(err))
			} else {
				out = truncated
			}
		}

		logger.Debug("recipe queries completed",
			zap.Strings("queries", queries),
			zap.Int("output_len", len(out)))
		return out, nil
	}
}
