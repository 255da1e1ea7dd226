package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQdrantStore_BasicFlow(t *testing.T) {
	t.Parallel()

	var createCalls, upsertCalls, searchCalls, countCalls atomic.Int64
	var searchBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/recipes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		createCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/recipes/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Contains(t, r.URL.RawQuery, "wait=true")
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		upsertCalls.Add(1)

		var req struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float64      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Points, 2) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, qdrantPointID("r1"), req.Points[0].ID)
		assert.Equal(t, "r1", req.Points[0].Payload["doc_id"])
		assert.Equal(t, "Banana bread", req.Points[0].Payload["page_content"])
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})
	mux.HandleFunc("/collections/recipes/points/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		searchCalls.Add(1)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&searchBody))
		_, _ = w.Write([]byte(`{"status":"ok","result":[
			{"id":"p1","score":0.93,"vector":[1,0],"payload":{"doc_id":"r1","page_content":"Banana bread","metadata":{"aggregated_rating":4.6}}},
			{"id":"p2","score":0.41,"payload":{"page_content":"Rye","metadata":{}}}
		]}`))
	})
	mux.HandleFunc("/collections/recipes/points/count", func(w http.ResponseWriter, r *http.Request) {
		countCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":2}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{
		BaseURL:              srv.URL,
		APIKey:               "secret",
		Collection:           "recipes",
		AutoCreateCollection: true,
	}, srv.Client(), zap.NewNop())

	ctx := context.Background()
	require.NoError(t, store.AddDocuments(ctx, []Document{
		recipe("r1", "Banana bread", map[string]any{"aggregated_rating": 4.6}, 1, 0),
		recipe("r2", "Rye", nil, 0, 1),
	}))

	f := And(Gte("aggregated_rating", 4), Not(Eq("keywords", "Breads")))
	results, err := store.Search(ctx, []float64{1, 0}, 5, SearchOptions{Filter: &f, WithVectors: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "r1", results[0].Document.ID)
	assert.Equal(t, []float64{1, 0}, results[0].Document.Vector)
	assert.Equal(t, 4.6, results[0].Document.Metadata["aggregated_rating"])
	assert.Equal(t, "p2", results[1].Document.ID, "falls back to the point id")
	assert.InDelta(t, 0.07, results[0].Distance, 1e-9)

	assert.Equal(t, true, searchBody["with_vector"])
	assert.EqualValues(t, 5, searchBody["limit"])
	filterJSON, _ := json.Marshal(searchBody["filter"])
	assert.JSONEq(t, `{"must":[
		{"must":[{"key":"metadata.aggregated_rating","range":{"gte":4}}]},
		{"must_not":[{"must":[{"key":"metadata.keywords","match":{"value":"Breads"}}]}]}
	]}`, string(filterJSON))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.EqualValues(t, 1, createCalls.Load())
	assert.EqualValues(t, 1, upsertCalls.Load())
	assert.EqualValues(t, 1, searchCalls.Load())
	assert.EqualValues(t, 1, countCalls.Load())
}

func TestQdrantStore_ExistingCollectionIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/recipes" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	}))
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "recipes", AutoCreateCollection: true}, srv.Client(), nil)
	assert.NoError(t, store.AddDocuments(context.Background(), []Document{recipe("r1", "x", nil, 1)}))
}

func TestQdrantStore_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "missing"}, srv.Client(), nil)
	_, err := store.Search(context.Background(), []float64{1}, 3, SearchOptions{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status=404"))
}

func TestQdrantStore_Validation(t *testing.T) {
	store := NewQdrantStore(QdrantConfig{}, nil, nil)
	_, err := store.Search(context.Background(), []float64{1}, 3, SearchOptions{})
	assert.ErrorContains(t, err, "collection is required")

	store = NewQdrantStore(QdrantConfig{Collection: "c"}, nil, nil)
	results, err := store.Search(context.Background(), []float64{1}, 0, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	err = store.AddDocuments(context.Background(), []Document{recipe("a", "a", nil, 1), recipe("b", "b", nil, 1, 2)})
	assert.ErrorContains(t, err, "dimension mismatch")

	err = store.AddDocuments(context.Background(), []Document{{Content: "no id"}})
	assert.ErrorContains(t, err, "empty id")
}

func TestTranslateFilter_Comparators(t *testing.T) {
	store := NewQdrantStore(QdrantConfig{Collection: "c"}, nil, nil)

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{name: "ne", filter: Filter{Comparator: CompareNe, Attribute: "keywords", Value: "x"},
			want: `{"must_not":[{"key":"metadata.keywords","match":{"value":"x"}}]}`},
		{name: "lt", filter: Lt("review_count", "10"),
			want: `{"must":[{"key":"metadata.review_count","range":{"lt":10}}]}`},
		{name: "like", filter: Filter{Comparator: CompareLike, Attribute: "keywords", Value: "%vegan%"},
			want: `{"must":[{"key":"metadata.keywords","match":{"text":"vegan"}}]}`},
		{name: "in", filter: Filter{Comparator: CompareIn, Attribute: "recipe_category", Value: []any{"A", "B"}},
			want: `{"must":[{"key":"metadata.recipe_category","match":{"any":["A","B"]}}]}`},
		{name: "nin", filter: Filter{Comparator: CompareNin, Attribute: "recipe_category", Value: []any{"A"}},
			want: `{"must":[{"key":"metadata.recipe_category","match":{"except":["A"]}}]}`},
		{name: "or", filter: Or(Eq("name", "a"), Eq("name", "b")),
			want: `{"should":[{"must":[{"key":"metadata.name","match":{"value":"a"}}]},{"must":[{"key":"metadata.name","match":{"value":"b"}}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.translateFilter(tt.filter)
			require.NoError(t, err)
			raw, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}

	_, err := store.translateFilter(Gte("aggregated_rating", "high"))
	assert.Error(t, err)
	_, err = store.translateFilter(Filter{Comparator: "near", Attribute: "x"})
	assert.Error(t, err)
}
