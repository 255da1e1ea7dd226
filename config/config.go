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

// Config 是 RecipeFlow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 对话主模型（Anthropic Messages API）
	LLM providers.AnthropicConfig `yaml:"llm" env:"LLM"`

	// SelfQuery 过滤条件构造模型的各后端配置
	SelfQuery SelfQueryConfig `yaml:"self_query" env:"SELF_QUERY"`

	// Embedding 嵌入模型配置
	Embedding embedding.Config `yaml:"embedding" env:"EMBEDDING"`

	// Reranker 交叉编码器配置
	Reranker rerank.Config `yaml:"reranker" env:"RERANKER"`

	// Qdrant 向量存储配置
	Qdrant rag.QdrantConfig `yaml:"qdrant" env:"QDRANT"`

	// Retrieval 请求未携带 config 时使用的检索与生成参数
	Retrieval types.RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Search 网页搜索工具配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Agent 对话循环与工具执行配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Redis 嵌入缓存配置
	Redis cache.Config `yaml:"redis" env:"REDIS"`

	// Database 对话审计日志数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示在 HTTP 端口上提供 /metrics
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，流式接口不受此限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单个对话请求的最长处理时间
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 每个客户端的限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，空表示拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
	// 滚动日志文件，为空时不写文件
	File LogFileConfig `yaml:"file" env:"FILE"`
}

// LogFileConfig 滚动日志文件配置
type LogFileConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// SelfQueryConfig 自查询后端配置，按请求中的 self_query_api 选择
type SelfQueryConfig struct {
	OpenAI providers.OpenAIConfig      `yaml:"openai" env:"OPENAI"`
	Azure  providers.AzureOpenAIConfig `yaml:"azure" env:"AZURE"`
	Gemini providers.GeminiConfig      `yaml:"gemini" env:"GEMINI"`
}

// SearchConfig 网页搜索工具配置
type SearchConfig struct {
	Google  tools.GoogleSearchConfig `yaml:"google" env:"GOOGLE"`
	Fetcher tools.PageFetcherConfig  `yaml:"fetcher" env:"FETCHER"`
}

// AgentConfig 对话循环与工具执行配置
type AgentConfig struct {
	tools.RunnerConfig `yaml:",inline"`
	// 单批工具调用的最大并发
	ToolConcurrency int `yaml:"tool_concurrency" env:"TOOL_CONCURRENCY"`
	// 单次工具调用内按查询扇出的最大并发
	QueryConcurrency int `yaml:"query_concurrency" env:"QUERY_CONCURRENCY"`
	// 菜谱检索工具输出的 token 上限，0 表示不截断
	MaxToolOutputTokens int `yaml:"max_tool_output_tokens" env:"MAX_TOOL_OUTPUT_TOKENS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否记录对话审计日志
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// AuthConfig 认证配置。APIKeys 与 JWT 都为空时不启用认证。
type AuthConfig struct {
	APIKeys          []string  `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool      `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	JWT              JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 校验配置。PublicKey 为 PEM 格式时使用 RS256，否则使用 Secret 做 HS256。
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 报告是否配置了 JWT 校验
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}
