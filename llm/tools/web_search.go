package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/types"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WebSearchToolName is the web search tool advertised to the model.
const WebSearchToolName = "google_web_search"

// SearchHit is one organic result returned by a search backend.
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchProvider defines the interface for web search backends.
type SearchProvider interface {
	// Search returns at most num results for query.
	Search(ctx context.Context, query string, num int) ([]SearchHit, error)
	// Name returns the provider name.
	Name() string
}

// ====== Google Custom Search ======

// GoogleSearchConfig configures the Google Custom Search JSON API client.
type GoogleSearchConfig struct {
	APIKey            string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	EngineID          string        `json:"engine_id" yaml:"engine_id" env:"ENGINE_ID"`
	BaseURL           string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	NumResults        int           `json:"num_results" yaml:"num_results" env:"NUM_RESULTS"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `json:"burst" yaml:"burst" env:"BURST"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL"`
}

// DefaultGoogleSearchConfig returns sensible defaults.
func DefaultGoogleSearchConfig() GoogleSearchConfig {
	return GoogleSearchConfig{
		BaseURL:           "https://www.googleapis.com/customsearch/v1",
		NumResults:        3,
		Timeout:           15 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		CacheTTL:          10 * time.Minute,
	}
}

// GoogleSearch queries the Custom Search JSON API. Results are cached per
// (query, num) and outgoing requests are rate limited.
type GoogleSearch struct {
	config  GoogleSearchConfig
	client  *http.Client
	limiter *rate.Limiter
	cache   *gocache.Cache
	logger  *zap.Logger
}

// NewGoogleSearch 创建 Google 自定义搜索客户端
func NewGoogleSearch(config GoogleSearchConfig, logger *zap.Logger) (*GoogleSearch, error) {
	if config.APIKey == "" || config.EngineID == "" {
		return nil, types.NewError(types.ErrConfigInvalid, "google search requires api_key and engine_id")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultGoogleSearchConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.NumResults <= 0 {
		config.NumResults = defaults.NumResults
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	return &GoogleSearch{
		config:  config,
		client:  tlsutil.SecureHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		cache:   gocache.New(config.CacheTTL, 2*config.CacheTTL),
		logger:  logger.With(zap.String("component", "google_search")),
	}, nil
}

func (g *GoogleSearch) Name() string { return "google_cse" }

// NumResults is the configured number of results per query.
func (g *GoogleSearch) NumResults() int { return g.config.NumResults }

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GoogleSearch) Search(ctx context.Context, query string, num int) ([]SearchHit, error) {
	if num <= 0 {
		num = g.config.NumResults
	}
	// API 单次最多返回 10 条
	if num > 10 {
		num = 10
	}

	cacheKey := strconv.Itoa(num) + "\x00" + query
	if cached, ok := g.cache.Get(cacheKey); ok {
		g.logger.Debug("search cache hit", zap.String("query", query))
		return cached.([]SearchHit), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrRateLimited, "search rate limiter").WithCause(err)
	}

	params := url.Values{}
	params.Set("key", g.config.APIKey)
	params.Set("cx", g.config.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, providers.TransportError(err, g.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), g.Name())
	}

	var body googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode search response").WithCause(err).WithProvider(g.Name())
	}

	hits := make([]SearchHit, 0, len(body.Items))
	for _, item := range body.Items {
		hits = append(hits, SearchHit{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	g.cache.SetDefault(cacheKey, hits)

	g.logger.Debug("search completed", zap.String("query", query), zap.Int("results", len(hits)))
	return hits, nil
}

// ====== google_web_search 工具 ======

// WebSearchResult is one entry of the tool output.
type WebSearchResult struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	PageContent string `json:"page_content"`
}

// WebSearchToolConfig configures the web search tool.
type WebSearchToolConfig struct {
	Provider       SearchProvider
	Fetcher        *PageFetcher
	NumResults     int // results per query
	MaxConcurrency int // queries searched at once
}

// WebSearchMetadata returns the schema of the web search tool.
func WebSearchMetadata() ToolMetadata {
	return ToolMetadata{
		Schema: types.ToolSchema{
			Name: WebSearchToolName,
			Description: "Search the web with Google when the recipe database does not cover the request, " +
				"or for current information. Returns the title, snippet and page text of the top results per query.",
			Parameters: queriesSchema("Independent web search queries"),
		},
	}
}

// NewWebSearchTool returns the handler for google_web_search. Queries are
// searched concurrently and every result page is fetched concurrently under
// the fetcher's timeout; a page that cannot be fetched in time keeps an empty
// page_content. A query whose search fails maps to an empty list; the call
// fails only when every query failed.
func NewWebSearchTool(config WebSearchToolConfig, logger *zap.Logger) ToolFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", WebSearchToolName))
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}

	return func(ctx context.Context, args json.RawMessage) (string, error) {
		queries, err := parseQueries(WebSearchToolName, args)
		if err != nil {
			return "", err
		}
		if config.Provider == nil {
			return "", types.NewError(types.ErrConfigInvalid, "web search provider not configured")
		}

		results := make([][]WebSearchResult, len(queries))
		errs := make([]error, len(queries))

		var g errgroup.Group
		g.SetLimit(config.MaxConcurrency)
		for i, q := range queries {
			g.Go(func() error {
				results[i], errs[i] = searchOne(ctx, config, q)
				if errs[i] != nil {
					logger.Error("web search failed", zap.String("query", q), zap.Error(errs[i]))
				}
				return nil
			})
		}
		_ = g.Wait()

		out := make(map[string][]WebSearchResult, len(queries))
		failed := 0
		for i, q := range queries {
			if errs[i] != nil {
				failed++
				out[q] = []WebSearchResult{}
				continue
			}
			out[q] = results[i]
		}
		if len(queries) > 0 && failed == len(queries) {
			return "", errs[0]
		}

		data, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("encode search results: %w", err)
		}
		return string(data), nil
	}
}

func searchOne(ctx context.Context, config WebSearchToolConfig, query string) ([]WebSearchResult, error) {
	hits, err := config.Provider.Search(ctx, query, config.NumResults)
	if err != nil {
		return nil, err
	}

	results := make([]WebSearchResult, len(hits))
	var g errgroup.Group
	for i, hit := range hits {
		results[i] = WebSearchResult{Title: hit.Title, Snippet: strings.TrimSpace(hit.Snippet)}
		if config.Fetcher == nil || hit.Link == "" {
			continue
		}
		g.Go(func() error {
			results[i].PageContent = config.Fetcher.Fetch(ctx, hit.Link)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
