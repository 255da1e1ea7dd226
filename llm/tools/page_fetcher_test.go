package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/llm/tokenizer"
	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "visible text only",
			html: `<html><head><title>T</title><style>p{}</style></head><body><p>One</p><script>x()</script><p>Two</p></body></html>`,
			want: "One\nTwo",
		},
		{
			name: "whitespace collapsed and entities decoded",
			html: "<div>\n  Salt &amp; \t pepper \n</div><div>   </div>",
			want: "Salt & pepper",
		},
		{
			name: "nested skipped elements",
			html: `<body><noscript><p>enable js</p></noscript><span>kept</span></body>`,
			want: "kept",
		},
		{name: "empty", html: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := NewPageFetcher(PageFetcherConfig{Timeout: 50 * time.Millisecond}, nil, nil)
	_, err := f.FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrExternalFetchTimeout))

	assert.Equal(t, "", f.Fetch(context.Background(), srv.URL))
}

func TestPageFetcher_StatusAndTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<p>" + strings.Repeat("a", 400) + "</p>"))
	}))
	defer srv.Close()

	f := NewPageFetcher(PageFetcherConfig{MaxTokens: 10}, tokenizer.NewEstimatorTokenizer("test", 0), nil)

	assert.Equal(t, "", f.Fetch(context.Background(), srv.URL+"/missing"))

	text, err := f.FetchText(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 40), text)
}
