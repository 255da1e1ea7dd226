// =============================================================================
// 📦 RecipeFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值，凭据类字段保持为空
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/recipeflow/internal/cache"
	"github.com/BaSui01/recipeflow/llm/embedding"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/llm/rerank"
	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		SelfQuery: DefaultSelfQueryConfig(),
		Embedding: embedding.DefaultConfig(),
		Reranker:  rerank.DefaultConfig(),
		Qdrant:    DefaultQdrantConfig(),
		Retrieval: types.DefaultRetrievalConfig(),
		Search:    DefaultSearchConfig(),
		Agent:     DefaultAgentConfig(),
		Redis:     cache.DefaultConfig(),
		Database:  DefaultDatabaseConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Auth:      AuthConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  5 * time.Minute,
		MaxBodyBytes:    4 << 20,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
		File: LogFileConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultLLMConfig 返回默认对话模型配置
func DefaultLLMConfig() providers.AnthropicConfig {
	return providers.AnthropicConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			BaseURL: "https://api.anthropic.com",
			Model:   "claude-3-5-sonnet-20240620",
			Timeout: 2 * time.Minute,
		},
		Version: "2023-06-01",
	}
}

// DefaultSelfQueryConfig 返回默认自查询后端配置
func DefaultSelfQueryConfig() SelfQueryConfig {
	return SelfQueryConfig{
		OpenAI: providers.OpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				BaseURL: "https://api.openai.com",
				Model:   "gpt-4o-mini",
				Timeout: 30 * time.Second,
			},
		},
		Azure: providers.AzureOpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{Timeout: 30 * time.Second},
			APIVersion:         "2024-02-01",
		},
		Gemini: providers.GeminiConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				Model:   "gemini-1.5-pro",
				Timeout: 30 * time.Second,
			},
		},
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() rag.QdrantConfig {
	return rag.QdrantConfig{
		Host:       "localhost",
		Port:       6333,
		Collection: "recipes",
		Timeout:    30 * time.Second,
		Distance:   "Cosine",
	}
}

// DefaultSearchConfig 返回默认网页搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Google:  tools.DefaultGoogleSearchConfig(),
		Fetcher: tools.DefaultPageFetcherConfig(),
	}
}

// DefaultAgentConfig 返回默认对话循环配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		RunnerConfig:        tools.RunnerConfig{MaxToolRounds: tools.DefaultMaxToolRounds},
		ToolConcurrency:     tools.DefaultMaxConcurrency,
		QueryConcurrency:    4,
		MaxToolOutputTokens: 0,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（本地 sqlite 文件）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "recipeflow",
		Name:            "recipeflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "recipeflow",
		SampleRate:   0.1,
	}
}
