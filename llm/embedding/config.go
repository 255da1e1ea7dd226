package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/recipeflow/internal/cache"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// Provider names accepted by Config.Provider.
const (
	ProviderOpenAI = "openai" // OpenAI 或任何 OpenAI 兼容端点（含 text-embeddings-inference）
	ProviderGemini = "gemini"
)

// Config 嵌入配置
type Config struct {
	Provider   string        `json:"provider" yaml:"provider" env:"PROVIDER"`
	APIKey     string        `json:"-" yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model      string        `json:"model" yaml:"model" env:"MODEL"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty" env:"DIMENSIONS"`
	MaxBatch   int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty" env:"MAX_BATCH"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	CacheTTL   time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty" env:"CACHE_TTL"`

	Logger *zap.Logger `json:"-" yaml:"-" env:"-"`
}

// DefaultConfig 返回默认嵌入配置：本地 text-embeddings-inference 上的 all-MiniLM-L6-v2
func DefaultConfig() Config {
	return Config{
		Provider: ProviderOpenAI,
		BaseURL:  "http://localhost:8080",
		Model:    "sentence-transformers/all-MiniLM-L6-v2",
		MaxBatch: 64,
		Timeout:  30 * time.Second,
		CacheTTL: 7 * 24 * time.Hour,
	}
}

// New 按配置创建嵌入提供者；c 非 nil 时包一层 Redis 缓存
func New(ctx context.Context, cfg Config, c *cache.Manager, observer CacheObserver) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		p = NewOpenAIProvider(cfg)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("unknown embedding provider %q", cfg.Provider))
	}

	if c != nil {
		return NewCachedProvider(p, c, cfg.CacheTTL, observer, cfg.Logger), nil
	}
	return p, nil
}
