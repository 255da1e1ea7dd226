package selfquery

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/llm/providers/gemini"
	"github.com/BaSui01/recipeflow/llm/providers/openai"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// Constructor 实现 rag.QueryConstructor：让辅助模型把自然语言查询翻译成
// rag.StructuredQuery。
type Constructor struct {
	gen    llm.TextGenerator
	logger *zap.Logger
}

// NewConstructor 创建过滤器构造器
func NewConstructor(gen llm.TextGenerator, logger *zap.Logger) *Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Constructor{gen: gen, logger: logger.With(zap.String("component", "self_query"))}
}

// Construct 实现 rag.QueryConstructor
func (c *Constructor) Construct(ctx context.Context, query, contentDescription string, schema []rag.AttributeInfo) (*rag.StructuredQuery, error) {
	raw, err := c.gen.Generate(ctx, systemPrompt, buildPrompt(query, contentDescription, schema))
	if err != nil {
		return nil, types.NewError(types.ErrLLMCall, "filter construction call failed").
			WithCause(err).WithProvider(c.gen.Name())
	}

	sq, err := rag.ParseStructuredQuery(raw)
	if err != nil {
		c.logger.Warn("unparseable structured query", zap.String("raw", raw), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("structured query constructed",
		zap.String("query", query),
		zap.String("search_query", sq.Query),
		zap.Bool("filtered", sq.Filter != nil),
		zap.Int("limit", sq.Limit))
	return sq, nil
}

// Factory 按 (后端, 模型) 构造并缓存 Constructor。构造过程不发起网络请求。
type Factory struct {
	OpenAI providers.OpenAIConfig
	Azure  providers.AzureOpenAIConfig
	Gemini providers.GeminiConfig
	Logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*Constructor
}

// Build 满足 rag.ConstructorFactory，可直接以 factory.Build 传入
func (f *Factory) Build(api types.SelfQueryAPI, model string) (rag.QueryConstructor, error) {
	key := string(api) + "/" + model

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[key]; ok {
		return c, nil
	}

	gen, err := f.generator(api, model)
	if err != nil {
		return nil, err
	}
	if f.cache == nil {
		f.cache = make(map[string]*Constructor)
	}
	c := NewConstructor(gen, f.Logger)
	f.cache[key] = c
	return c, nil
}

func (f *Factory) generator(api types.SelfQueryAPI, model string) (llm.TextGenerator, error) {
	switch api {
	case types.SelfQueryOpenAI:
		cfg := f.OpenAI
		if model != "" {
			cfg.Model = model
		}
		return openai.NewGenerator(cfg, f.Logger), nil

	case types.SelfQueryAzure:
		cfg := f.Azure
		if model != "" {
			cfg.Model = model
		}
		gen, err := openai.NewAzureGenerator(cfg, f.Logger)
		if err != nil {
			return nil, err
		}
		return gen, nil

	case types.SelfQueryGemini:
		cfg := f.Gemini
		if model != "" {
			cfg.Model = model
		}
		gen, err := gemini.NewGenerator(context.Background(), cfg, f.Logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
	return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("unknown self query api %q", api))
}
