package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 向量数据库接口（只读检索）
type VectorStore interface {
	// 搜索相似文档，按相似度降序
	Search(ctx context.Context, queryEmbedding []float64, topK int, opts SearchOptions) ([]VectorSearchResult, error)

	// 获取文档数量
	Count(ctx context.Context) (int, error)
}

// DocumentWriter is implemented by stores that accept new documents.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, docs []Document) error
}

// SearchOptions 搜索选项
type SearchOptions struct {
	// Filter restricts candidates by metadata. Nil means no filter.
	Filter *Filter
	// WithVectors asks the store to return stored embeddings (needed by MMR).
	WithVectors bool
}

// VectorSearchResult 向量搜索结果
type VectorSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance"`
}

// ====== 内存向量存储（自过滤阶段的临时索引）======

// InMemoryVectorStore 内存向量存储
type InMemoryVectorStore struct {
	documents []Document
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		documents: make([]Document, 0),
		logger:    logger,
	}
}

// AddDocuments 添加文档，文档必须带向量
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, doc := range docs {
		if len(doc.Vector) == 0 {
			return fmt.Errorf("document[%d] %q has no embedding", i, doc.ID)
		}
		s.documents = append(s.documents, doc)
	}

	s.logger.Debug("documents added to in-memory index",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.documents)))

	return nil
}

// Search 搜索相似文档。过滤先于打分，同分保持插入顺序。
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, opts SearchOptions) ([]VectorSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 || topK <= 0 {
		return []VectorSearchResult{}, nil
	}

	results := make([]VectorSearchResult, 0, len(s.documents))
	for _, doc := range s.documents {
		if opts.Filter != nil && !opts.Filter.Match(doc.Metadata) {
			continue
		}

		similarity := cosineSimilarity(queryEmbedding, doc.Vector)
		out := doc
		if !opts.WithVectors {
			out.Vector = nil
		}
		results = append(results, VectorSearchResult{
			Document: out,
			Score:    similarity,
			Distance: 1.0 - similarity,
		})
	}

	sortByScore(results)

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Count 返回文档数量
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// 余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按分数降序排序，同分保持原顺序
func sortByScore(results []VectorSearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
