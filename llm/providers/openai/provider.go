package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/llm/retry"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o"
	defaultAPIVersion  = "2024-06-01"
	defaultTemperature = 0
)

// Generator 实现 llm.TextGenerator，基于 Chat Completions API。
// 同一实现同时服务 OpenAI 与 Azure OpenAI，两者只在 URL 与认证头上不同。
type Generator struct {
	name        string
	endpoint    string
	model       string
	headers     func(req *http.Request)
	temperature float64
	client      *http.Client
	retryer     retry.Retryer
	logger      *zap.Logger
}

// NewGenerator 创建 OpenAI 文本生成器
func NewGenerator(cfg providers.OpenAIConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	apiKey, org := cfg.APIKey, cfg.Organization

	return &Generator{
		name:     "openai",
		endpoint: strings.TrimRight(base, "/") + "/v1/chat/completions",
		model:    providers.ChooseModel("", cfg.Model, defaultModel),
		headers: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			if org != "" {
				req.Header.Set("OpenAI-Organization", org)
			}
		},
		temperature: defaultTemperature,
		client:      tlsutil.SecureHTTPClient(timeoutOrDefault(cfg.Timeout)),
		retryer:     retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger),
		logger:      logger.With(zap.String("provider", "openai")),
	}
}

// NewAzureGenerator 创建 Azure OpenAI 文本生成器。Model 为 deployment 名称。
func NewAzureGenerator(cfg providers.AzureOpenAIConfig, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, types.NewError(types.ErrConfigInvalid, "azure openai requires an endpoint and a deployment")
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	apiKey := cfg.APIKey

	return &Generator{
		name: "azure",
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/openai/deployments/" +
			url.PathEscape(cfg.Model) + "/chat/completions?api-version=" + url.QueryEscape(version),
		model: cfg.Model,
		headers: func(req *http.Request) {
			req.Header.Set("api-key", apiKey)
		},
		temperature: defaultTemperature,
		client:      tlsutil.SecureHTTPClient(timeoutOrDefault(cfg.Timeout)),
		retryer:     retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger),
		logger:      logger.With(zap.String("provider", "azure")),
	}, nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// WithRetryer 替换重试器（测试中用于关闭退避等待）
func (g *Generator) WithRetryer(r retry.Retryer) *Generator {
	g.retryer = r
	return g
}

// Name 实现 llm.TextGenerator
func (g *Generator) Name() string { return g.name }

// Model 返回请求使用的模型（Azure 下为 deployment）
func (g *Generator) Model() string { return g.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Generate 实现 llm.TextGenerator
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{Model: g.model, Messages: msgs, Temperature: g.temperature})
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "encode request").WithCause(err)
	}

	return retry.DoWithResultTyped[string](g.retryer, ctx, func() (string, error) {
		return g.do(ctx, payload)
	})
}

func (g *Generator) do(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.headers(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", providers.TransportError(err, g.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), g.name)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode response").WithCause(err).WithProvider(g.name)
	}
	if len(out.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "response has no choices").WithProvider(g.name)
	}

	g.logger.Debug("chat completion finished",
		zap.String("model", g.model),
		zap.String("finish_reason", out.Choices[0].FinishReason))
	return out.Choices[0].Message.Content, nil
}
