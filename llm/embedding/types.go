// Package embedding 提供文本嵌入提供者，结果可直接作为 rag.Embedder 使用。
package embedding

import "context"

// InputType 指定嵌入优化的输入类型
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// Provider 统一的嵌入提供者接口，满足 rag.Embedder
type Provider interface {
	// EmbedQuery 嵌入单个查询
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 嵌入多个文档，返回顺序与输入一致
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name 返回提供者名称
	Name() string

	// Model 返回使用的模型，参与缓存键的计算
	Model() string
}

// CacheObserver receives cache hit and miss counts. metrics.Collector satisfies it.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}
