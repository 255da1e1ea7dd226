package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
// 通过嵌入此结构体，各 Provider 的 Config 自动获得 APIKey、BaseURL、Model、Timeout 四个字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// AnthropicConfig Anthropic Messages API 配置（对话主模型）
type AnthropicConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Version            string `json:"version,omitempty" yaml:"version,omitempty" env:"VERSION"` // anthropic-version 请求头
}

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty" env:"ORGANIZATION"`
}

// AzureOpenAIConfig Azure OpenAI 配置。BaseURL 为资源 endpoint，Model 为 deployment 名称。
type AzureOpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	APIVersion         string `json:"api_version,omitempty" yaml:"api_version,omitempty" env:"API_VERSION"`
}

// GeminiConfig Gemini Provider 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
