package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDocsHandler_HandleQuery(t *testing.T) {
	var gotCfg types.RetrievalConfig
	builder := func(cfg types.RetrievalConfig) (rag.Retriever, error) {
		gotCfg = cfg
		return rag.RetrieverFunc(func(ctx context.Context, query string) ([]rag.Document, error) {
			if query == "nothing" {
				return nil, nil
			}
			return []rag.Document{
				{Content: "Recipe for " + query, Metadata: map[string]any{"cook_time": "PT30M"}},
				{Content: "Another " + query},
			}, nil
		}), nil
	}
	handler := NewDocsHandler(builder, types.DefaultRetrievalConfig(), 2, 0, zap.NewNop())

	body := `{"queries":["curry","soup","nothing"],"config":{"retriever":"reranker","reranker_top_n":2}}`
	w := httptest.NewRecorder()
	handler.HandleQuery(w, chatRequest(t, "/api/v1/docs/query", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.RetrieverReranker, gotCfg.Retriever)
	assert.Equal(t, 2, gotCfg.RerankTopN)

	var resp api.DocsQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Queries, 3)
	require.Len(t, resp.Queries["curry"], 2)
	assert.Equal(t, "Recipe for curry", resp.Queries["curry"][0].PageContent)
	assert.Equal(t, "PT30M", resp.Queries["curry"][0].Metadata["cook_time"])
	assert.NotNil(t, resp.Queries["curry"][1].Metadata, "metadata is an object, never null")
	assert.Empty(t, resp.Queries["nothing"])
	assert.Contains(t, w.Body.String(), `"nothing":[]`)
}

func TestDocsHandler_HandleQuery_Errors(t *testing.T) {
	failing := func(cfg types.RetrievalConfig) (rag.Retriever, error) {
		return rag.RetrieverFunc(func(ctx context.Context, query string) ([]rag.Document, error) {
			return nil, types.NewError(types.ErrRetrieval, "vector store unavailable")
		}), nil
	}

	tests := []struct {
		name       string
		body       string
		builder    RetrieverBuilder
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"no queries", `{"queries":[]}`, staticRetrievers(), http.StatusBadRequest, types.ErrInvalidRequest},
		{"blank query", `{"queries":["curry",""]}`, staticRetrievers(), http.StatusBadRequest, types.ErrInvalidRequest},
		{"too many queries", `{"queries":[` + strings.Repeat(`"q",`, 16) + `"q"]}`, staticRetrievers(), http.StatusBadRequest, types.ErrInvalidRequest},
		{"bad config", `{"queries":["curry"],"config":{"coarse_top_k":0}}`, staticRetrievers(), http.StatusBadRequest, types.ErrConfigInvalid},
		{"retrieval fails", `{"queries":["curry"]}`, failing, http.StatusBadGateway, types.ErrRetrieval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDocsHandler(tt.builder, types.DefaultRetrievalConfig(), 0, 0, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleQuery(w, chatRequest(t, "/api/v1/docs/query", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, w.Body.Bytes()).Error.Code)
		})
	}
}
