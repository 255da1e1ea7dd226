// Package rerank 提供交叉编码器打分器，满足 rag.CrossEncoderScorer。
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/llm/retry"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// Provider names accepted by Config.Provider.
const (
	ProviderTEI    = "tei" // HuggingFace text-embeddings-inference /rerank
	ProviderCohere = "cohere"
)

// Config 重排序服务配置
type Config struct {
	Provider  string        `json:"provider" yaml:"provider" env:"PROVIDER"`
	APIKey    string        `json:"-" yaml:"api_key" env:"API_KEY"`
	BaseURL   string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model     string        `json:"model" yaml:"model" env:"MODEL"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	BatchSize int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty" env:"BATCH_SIZE"`
	MaxLength int           `json:"max_length,omitempty" yaml:"max_length,omitempty" env:"MAX_LENGTH"`

	Logger *zap.Logger `json:"-" yaml:"-" env:"-"`
}

// DefaultConfig 默认使用本地 TEI 上的 ms-marco MiniLM 交叉编码器
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderTEI,
		BaseURL:   "http://localhost:8081",
		Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout:   30 * time.Second,
		BatchSize: rag.DefaultRerankerConfig().BatchSize,
		MaxLength: rag.DefaultRerankerConfig().MaxLength,
	}
}

// RerankerConfig 返回 rag.Reranker 使用的批处理参数
func (c Config) RerankerConfig() rag.RerankerConfig {
	return rag.RerankerConfig{BatchSize: c.BatchSize, MaxLength: c.MaxLength}
}

// New 按配置创建打分器
func New(cfg Config) (rag.CrossEncoderScorer, error) {
	switch cfg.Provider {
	case ProviderTEI, "":
		return NewTEIScorer(cfg), nil
	case ProviderCohere:
		if cfg.APIKey == "" {
			return nil, types.NewError(types.ErrConfigInvalid, "cohere rerank requires an api key")
		}
		return NewCohereScorer(cfg), nil
	}
	return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("unknown rerank provider %q", cfg.Provider))
}

// httpClient 打分器共用的 JSON POST + 重试
type httpClient struct {
	name    string
	baseURL string
	headers map[string]string
	client  *http.Client
	retryer retry.Retryer
}

func newHTTPClient(name string, cfg Config, headers map[string]string) *httpClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
		client:  tlsutil.SecureHTTPClient(timeout),
		retryer: retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), cfg.Logger),
	}
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.retryer.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return providers.TransportError(err, c.name)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), c.name)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return providers.TransportError(err, c.name)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return types.NewError(types.ErrUpstreamError, "decode rerank response").WithCause(err).WithProvider(c.name)
		}
		return nil
	})
}

// scoreByQuery 把连续的同查询 pair 归为一组调用 fn，按原顺序拼接分数
func scoreByQuery(ctx context.Context, pairs []rag.QueryDocPair, fn func(ctx context.Context, query string, docs []string) ([]float64, error)) ([]float64, error) {
	scores := make([]float64, 0, len(pairs))
	for start := 0; start < len(pairs); {
		end := start + 1
		for end < len(pairs) && pairs[end].Query == pairs[start].Query {
			end++
		}
		docs := make([]string, end-start)
		for i := range docs {
			docs[i] = pairs[start+i].Document
		}

		group, err := fn(ctx, pairs[start].Query, docs)
		if err != nil {
			return nil, err
		}
		if len(group) != len(docs) {
			return nil, fmt.Errorf("rerank service returned %d scores for %d documents", len(group), len(docs))
		}
		scores = append(scores, group...)
		start = end
	}
	return scores, nil
}

// fillByIndex 将 (index, score) 结果写回输入顺序，索引越界或缺失视为错误
func fillByIndex(n int, indexes []int, values []float64) ([]float64, error) {
	out := make([]float64, n)
	seen := make([]bool, n)
	for i, idx := range indexes {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("rerank result index %d out of range", idx)
		}
		out[idx] = values[i]
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank result missing document %d", i)
		}
	}
	return out, nil
}
