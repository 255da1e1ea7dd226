package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-1.5-pro"
)

// Generator 实现 llm.TextGenerator，基于 google.golang.org/genai SDK
type Generator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewClient 创建 genai 客户端，Generator 与 embedding 包共用同一构造逻辑
func NewClient(ctx context.Context, cfg providers.GeminiConfig) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfigInvalid, "gemini requires an api key")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: tlsutil.SecureHTTPClient(timeout),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	return genai.NewClient(ctx, cc)
}

// NewGenerator 创建 Gemini 文本生成器
func NewGenerator(ctx context.Context, cfg providers.GeminiConfig, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{
		client: client,
		model:  providers.ChooseModel("", cfg.Model, defaultModel),
		logger: logger.With(zap.String("provider", providerName)),
	}, nil
}

// Name 实现 llm.TextGenerator
func (g *Generator) Name() string { return providerName }

// Generate 实现 llm.TextGenerator
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", MapError(err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", types.NewError(types.ErrUpstreamError, "gemini returned no candidates").WithProvider(providerName)
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}

	g.logger.Debug("generate content finished",
		zap.String("model", g.model),
		zap.String("finish_reason", string(result.Candidates[0].FinishReason)))
	return b.String(), nil
}

// MapError 将 genai.APIError 映射为 types.Error
func MapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, providerName).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, providerName).WithCause(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return providers.TransportError(err, providerName)
}
