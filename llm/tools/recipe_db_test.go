package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/recipeflow/llm/tokenizer"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder embeds every text onto a fixed vector; documents carry their own.
type axisEmbedder struct{}

func (axisEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (axisEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

type countingScorer struct{ calls atomic.Int64 }

func (s *countingScorer) Score(_ context.Context, pairs []rag.QueryDocPair) ([]float64, error) {
	s.calls.Add(1)
	return make([]float64, len(pairs)), nil
}

type passthroughConstructor struct{}

func (passthroughConstructor) Construct(_ context.Context, query, _ string, _ []rag.AttributeInfo) (*rag.StructuredQuery, error) {
	return &rag.StructuredQuery{Query: query}, nil
}

func cakeStore(t *testing.T, n int) *rag.InMemoryVectorStore {
	t.Helper()
	store := rag.NewInMemoryVectorStore(nil)
	docs := make([]rag.Document, n)
	for i := range docs {
		docs[i] = rag.Document{
			ID:      fmt.Sprintf("cake-%d", i),
			Content: fmt.Sprintf("Vegan chocolate cake variant %d", i),
			Metadata: map[string]any{
				"name":                fmt.Sprintf("Cake %d", i),
				"description":         "A rich cake",
				"recipe_category":     "Dessert",
				"keywords":            "vegan, chocolate",
				"aggregated_rating":   4.5,
				"review_count":        12,
				"recipe_instructions": rag.NoDataAvailable,
			},
			Vector: []float64{1, float64(i) / 10},
		}
	}
	require.NoError(t, store.AddDocuments(context.Background(), docs))
	return store
}

func TestRecipeDBTool_CoarseFormatting(t *testing.T) {
	cfg := types.DefaultRetrievalConfig()
	cfg.Retriever = types.RetrieverCoarse
	cfg.TopK = 5

	retriever, err := rag.BuildRetriever(&rag.RetrieverContext{
		Store:    cakeStore(t, 8),
		Embedder: axisEmbedder{},
	}, cfg)
	require.NoError(t, err)

	tool := NewRecipeDBTool(retriever, RecipeDBConfig{}, nil)
	out, err := tool(context.Background(), json.RawMessage(`{"queries":["vegan chocolate cake"]}`))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Query: vegan chocolate cake\n"))
	assert.Equal(t, 5, strings.Count(out, "Vegan chocolate cake variant"))
	assert.Equal(t, 1, strings.Count(out, "\n---\n"))
	assert.Contains(t, out, "keywords: vegan, chocolate")
	assert.Contains(t, out, "aggregated_rating: 4.5")
	assert.Contains(t, out, "review_count: 12")

	for _, excluded := range []string{"name:", "description:", "recipe_category:", "recipe_instructions:", rag.NoDataAvailable} {
		assert.NotContains(t, out, excluded)
	}
}

func TestRecipeDBTool_EmptySelfQueryChain(t *testing.T) {
	cfg := types.DefaultRetrievalConfig()
	cfg.Retriever = types.RetrieverSelfQueryChain

	scorer := &countingScorer{}
	retriever, err := rag.BuildRetriever(&rag.RetrieverContext{
		Store:    rag.NewInMemoryVectorStore(nil),
		Embedder: axisEmbedder{},
		Scorer:   scorer,
		Constructors: func(types.SelfQueryAPI, string) (rag.QueryConstructor, error) {
			return passthroughConstructor{}, nil
		},
	}, cfg)
	require.NoError(t, err)

	exec := (&Toolbox{}).Executor(retriever)
	results := exec.Execute(context.Background(), []types.ContentBlock{
		toolUse("t1", RecipeDBToolName, `{"queries":["anything at all"]}`),
	})

	require.Len(t, results, 1)
	assert.Equal(t, types.ToolResultBlock{ToolUseID: "t1", Content: ""}, results[0])
	assert.Zero(t, scorer.calls.Load(), "reranker must short-circuit on empty input")
}

func TestRecipeDBTool_FailingQuerySkipped(t *testing.T) {
	retriever := &fakeRetriever{
		docs: map[string][]rag.Document{
			"ramen": {{ID: "r", Content: "Shoyu ramen", Metadata: map[string]any{"keywords": "noodles"}}},
		},
		fail: map[string]error{"broken": errors.New("store unreachable")},
	}
	tool := NewRecipeDBTool(retriever, RecipeDBConfig{MaxConcurrency: 1}, nil)

	out, err := tool(context.Background(), json.RawMessage(`{"queries":["broken","ramen","ramen"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Query: ramen\n\nShoyu ramen\n\nMetadata:\nkeywords: noodles\n\n---\n", out)
	assert.Equal(t, int64(2), retriever.calls.Load(), "duplicate queries run once")
}

func TestRecipeDBTool_Arguments(t *testing.T) {
	retriever := &fakeRetriever{docs: map[string][]rag.Document{
		"pho": {{ID: "p", Content: "Beef pho"}},
	}}
	tool := NewRecipeDBTool(retriever, RecipeDBConfig{}, nil)

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"list", `{"queries":["pho"]}`, false},
		{"single string", `{"queries":"pho"}`, false},
		{"missing key", `{"query":"pho"}`, true},
		{"not an object", `["pho"]`, true},
		{"wrong type", `{"queries":42}`, true},
		{"empty", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tool(context.Background(), json.RawMessage(tt.args))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.HasCode(err, types.ErrToolArgument))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "Beef pho")
		})
	}
}

func TestRecipeDBTool_TruncatesOutput(t *testing.T) {
	long := strings.Repeat("simmer ", 400)
	retriever := &fakeRetriever{docs: map[string][]rag.Document{
		"stew": {{ID: "s", Content: long}},
	}}
	tool := NewRecipeDBTool(retriever, RecipeDBConfig{
		MaxOutputTokens: 50,
		Tokenizer:       tokenizer.NewEstimatorTokenizer("test", 0),
	}, nil)

	out, err := tool(context.Background(), json.RawMessage(`{"queries":["stew"]}`))
	require.NoError(t, err)
	assert.Len(t, out, 200)
	assert.True(t, strings.HasPrefix(out, "Query: stew\n"))
}
