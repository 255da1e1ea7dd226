package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGoogleSearch(t *testing.T, handler http.HandlerFunc) (*GoogleSearch, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g, err := NewGoogleSearch(GoogleSearchConfig{
		APIKey:   "test-key",
		EngineID: "test-cx",
		BaseURL:  srv.URL,
	}, nil)
	require.NoError(t, err)
	return g, &hits
}

func TestGoogleSearch_Search(t *testing.T) {
	g, hits := newTestGoogleSearch(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-cx", q.Get("cx"))
		assert.Equal(t, "best pad thai", q.Get("q"))
		assert.Equal(t, "3", q.Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Pad Thai","link":"https://example.com/a","snippet":"Classic"},
			{"title":"Easy Pad Thai","link":"https://example.com/b","snippet":"Fast"}
		]}`))
	})

	got, err := g.Search(context.Background(), "best pad thai", 0)
	require.NoError(t, err)
	assert.Equal(t, []SearchHit{
		{Title: "Pad Thai", Link: "https://example.com/a", Snippet: "Classic"},
		{Title: "Easy Pad Thai", Link: "https://example.com/b", Snippet: "Fast"},
	}, got)

	// 第二次命中本地缓存
	again, err := g.Search(context.Background(), "best pad thai", 3)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int64(1), hits.Load())
}

func TestGoogleSearch_NoItems(t *testing.T) {
	g, _ := newTestGoogleSearch(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	})
	got, err := g.Search(context.Background(), "zzzz", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGoogleSearch_Errors(t *testing.T) {
	g, _ := newTestGoogleSearch(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Quota exceeded","type":"rateLimitExceeded"}}`))
	})
	_, err := g.Search(context.Background(), "soup", 3)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrRateLimited))
	assert.True(t, types.IsRetryable(err))

	_, err = NewGoogleSearch(GoogleSearchConfig{APIKey: "k"}, nil)
	assert.True(t, types.HasCode(err, types.ErrConfigInvalid))
}

// stubSearch returns canned hits per query.
type stubSearch struct {
	hits map[string][]SearchHit
	errs map[string]error
}

func (s *stubSearch) Search(_ context.Context, query string, _ int) ([]SearchHit, error) {
	if err := s.errs[query]; err != nil {
		return nil, err
	}
	return s.hits[query], nil
}

func (s *stubSearch) Name() string { return "stub" }

func TestWebSearchTool_FetchesPagesWithTimeout(t *testing.T) {
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fast":
			_, _ = w.Write([]byte(`<html><head><title>x</title></head><body><h1>Green curry</h1><p>Simmer  with coconut milk.</p><script>var a=1;</script></body></html>`))
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			_, _ = w.Write([]byte(`<p>too late</p>`))
		}
	}))
	defer pages.Close()

	provider := &stubSearch{hits: map[string][]SearchHit{
		"green curry": {
			{Title: "Fast", Link: pages.URL + "/fast", Snippet: " quick "},
			{Title: "Slow", Link: pages.URL + "/slow", Snippet: "slow"},
		},
	}}
	fetcher := NewPageFetcher(PageFetcherConfig{Timeout: 100 * time.Millisecond}, nil, nil)
	tool := NewWebSearchTool(WebSearchToolConfig{Provider: provider, Fetcher: fetcher, NumResults: 3}, nil)

	start := time.Now()
	out, err := tool(context.Background(), json.RawMessage(`{"queries":["green curry"]}`))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var decoded map[string][]WebSearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded["green curry"], 2)
	assert.Equal(t, WebSearchResult{
		Title:       "Fast",
		Snippet:     "quick",
		PageContent: "Green curry\nSimmer with coconut milk.",
	}, decoded["green curry"][0])
	assert.Equal(t, WebSearchResult{Title: "Slow", Snippet: "slow", PageContent: ""}, decoded["green curry"][1])
}

func TestWebSearchTool_PartialAndTotalFailure(t *testing.T) {
	provider := &stubSearch{
		hits: map[string][]SearchHit{"ok": {{Title: "T", Snippet: "S"}}},
		errs: map[string]error{"bad": errors.New("quota"), "worse": errors.New("quota")},
	}
	tool := NewWebSearchTool(WebSearchToolConfig{Provider: provider}, nil)

	out, err := tool(context.Background(), json.RawMessage(`{"queries":["ok","bad"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":[{"title":"T","snippet":"S","page_content":""}],"bad":[]}`, out)

	_, err = tool(context.Background(), json.RawMessage(`{"queries":["bad","worse"]}`))
	assert.Error(t, err)

	_, err = tool(context.Background(), json.RawMessage(`{}`))
	assert.True(t, types.HasCode(err, types.ErrToolArgument))
}
