package embedding

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
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// BaseProvider 为基于 HTTP 的嵌入提供者提供公共能力：请求、错误映射、重试与分批
type BaseProvider struct {
	name     string
	model    string
	client   *http.Client
	baseURL  string
	maxBatch int
	retryer  retry.Retryer
}

// BaseConfig 基础提供者配置
type BaseConfig struct {
	Name     string
	BaseURL  string
	Model    string
	MaxBatch int
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewBaseProvider 创建基础提供者
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &BaseProvider{
		name:     cfg.Name,
		model:    cfg.Model,
		client:   tlsutil.SecureHTTPClient(timeout),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxBatch: maxBatch,
		retryer:  retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), cfg.Logger),
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Model() string     { return p.model }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// SetRetryer 替换重试器
func (p *BaseProvider) SetRetryer(r retry.Retryer) { p.retryer = r }

// DoRequest 发送 JSON 请求，HTTP 错误映射为 types.Error，可重试错误按策略重试
func (p *BaseProvider) DoRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	return retry.DoWithResultTyped[[]byte](p.retryer, ctx, func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, providers.TransportError(err, p.name)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.name)
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return respBody, nil
	})
}

// EmbedBatched 按 MaxBatchSize 切分输入，依次调用 fn 并按原顺序拼接结果
func (p *BaseProvider) EmbedBatched(ctx context.Context, texts []string, fn func(context.Context, []string) ([][]float64, error)) ([][]float64, error) {
	return embedBatched(ctx, texts, p.maxBatch, p.name, fn)
}

func embedBatched(ctx context.Context, texts []string, maxBatch int, name string, fn func(context.Context, []string) ([][]float64, error)) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, types.NewError(types.ErrUpstreamError,
				fmt.Sprintf("%s returned %d embeddings for %d inputs", name, len(vecs), end-start)).WithProvider(name)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// firstVector 取单条查询的嵌入
func firstVector(vecs [][]float64, name string) ([]float64, error) {
	if len(vecs) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "no embeddings returned").WithProvider(name)
	}
	return vecs[0], nil
}
