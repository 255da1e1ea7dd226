package rag

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/recipeflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// QueryDocPair 查询-文档对
type QueryDocPair struct {
	Query    string `json:"query"`
	Document string `json:"document"`
}

// CrossEncoderScorer scores (query, document) pairs jointly; higher is more relevant.
// It must return exactly one score per pair, in order.
type CrossEncoderScorer interface {
	Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error)
}

// RerankerConfig 重排序配置
type RerankerConfig struct {
	BatchSize int `json:"batch_size" yaml:"batch_size"` // 批处理大小
	MaxLength int `json:"max_length" yaml:"max_length"` // 最大序列长度（token 估算，按 4 字符/token 截断）
}

// DefaultRerankerConfig 默认重排序配置
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		BatchSize: 32,
		MaxLength: 512,
	}
}

// Reranker 交叉编码器重排序
type Reranker struct {
	scorer   CrossEncoderScorer
	config   RerankerConfig
	observer StageObserver
	logger   *zap.Logger
}

// NewReranker 创建重排序器
func NewReranker(scorer CrossEncoderScorer, config RerankerConfig, observer StageObserver, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRerankerConfig().BatchSize
	}
	if config.MaxLength <= 0 {
		config.MaxLength = DefaultRerankerConfig().MaxLength
	}
	return &Reranker{
		scorer:   scorer,
		config:   config,
		observer: observer,
		logger:   logger.With(zap.String("component", "reranker")),
	}
}

// Rerank keeps the topN documents by descending cross-encoder score. Equal
// scores keep their input order. Empty input returns without scoring.
func (r *Reranker) Rerank(ctx context.Context, docs []Document, query string, topN int) (out []Document, err error) {
	if len(docs) == 0 {
		return []Document{}, nil
	}

	ctx, span := tracer.Start(ctx, "rag."+StageRerank, trace.WithAttributes(
		attribute.Int("rag.rerank.candidates", len(docs)),
		attribute.Int("rag.rerank.top_n", topN),
	))
	start := time.Now()
	defer func() {
		r.observer.ObserveRetrievalStage(StageRerank, time.Since(start), len(out), err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	pairs := make([]QueryDocPair, len(docs))
	for i, d := range docs {
		pairs[i] = QueryDocPair{Query: query, Document: truncateUTF8(d.Content, r.config.MaxLength*4)}
	}

	scores, err := r.batchScore(ctx, pairs)
	if err != nil {
		return nil, types.NewError(types.ErrRerank, "cross-encoder scoring failed").WithCause(err)
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topN <= 0 || topN > len(order) {
		topN = len(order)
	}
	out = make([]Document, 0, topN)
	for _, idx := range order[:topN] {
		out = append(out, docs[idx])
	}

	r.logger.Debug("reranking completed",
		zap.Int("candidates", len(docs)),
		zap.Int("kept", len(out)),
		zap.Float64("top_score", scores[order[0]]))
	return out, nil
}

func (r *Reranker) batchScore(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))

	// 分批处理
	for i := 0; i < len(pairs); i += r.config.BatchSize {
		end := i + r.config.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		batchScores, err := r.scorer.Score(ctx, pairs[i:end])
		if err != nil {
			return nil, err
		}
		if len(batchScores) != end-i {
			return nil, fmt.Errorf("scorer returned %d scores for %d pairs", len(batchScores), end-i)
		}
		copy(scores[i:end], batchScores)
	}

	return scores, nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
