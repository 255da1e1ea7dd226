package rag

import (
	"context"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/recipeflow/rag"

var tracer = otel.Tracer(instrumentationName)

// Embedder turns text into vectors. It is the opaque embedding function of the pipeline.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// StageObserver receives one observation per finished retrieval stage.
type StageObserver interface {
	ObserveRetrievalStage(stage string, duration time.Duration, documents int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRetrievalStage(string, time.Duration, int, error) {}

// Stage names reported to StageObserver and used as span names.
const (
	StageCoarse     = "coarse"
	StageSelfFilter = "self_filter"
	StageRerank     = "rerank"
)

// CoarseRetriever 粗检索：在全量向量库上做相似度或 MMR 检索
type CoarseRetriever struct {
	store    VectorStore
	embedder Embedder
	observer StageObserver
	logger   *zap.Logger
}

// NewCoarseRetriever 创建粗检索器
func NewCoarseRetriever(store VectorStore, embedder Embedder, observer StageObserver, logger *zap.Logger) *CoarseRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &CoarseRetriever{
		store:    store,
		embedder: embedder,
		observer: observer,
		logger:   logger.With(zap.String("component", "coarse_retriever")),
	}
}

// Retrieve returns candidates for query. Errors come back as RETRIEVAL_ERROR
// and are not retried here.
func (r *CoarseRetriever) Retrieve(ctx context.Context, query string, cfg types.RetrievalConfig) (docs []Document, err error) {
	ctx, span := tracer.Start(ctx, "rag."+StageCoarse, trace.WithAttributes(
		attribute.String("rag.search_type", string(cfg.SearchType)),
		attribute.Int("rag.top_k", cfg.TopK),
	))
	start := time.Now()
	defer func() {
		r.observer.ObserveRetrievalStage(StageCoarse, time.Since(start), len(docs), err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "embed query").WithCause(err)
	}

	switch cfg.SearchType {
	case types.SearchMMR:
		docs, err = r.searchMMR(ctx, queryVec, cfg)
	case types.SearchSimilarity:
		docs, err = r.searchSimilarity(ctx, queryVec, cfg.TopK)
	default:
		return nil, types.NewError(types.ErrConfigInvalid, "unknown search type: "+string(cfg.SearchType))
	}
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "vector store search").WithCause(err)
	}

	r.logger.Debug("coarse retrieval completed",
		zap.String("search_type", string(cfg.SearchType)),
		zap.Int("documents", len(docs)))
	return docs, nil
}

func (r *CoarseRetriever) searchSimilarity(ctx context.Context, queryVec []float64, topK int) ([]Document, error) {
	// 向量随结果返回，供自过滤阶段复用
	results, err := r.store.Search(ctx, queryVec, topK, SearchOptions{WithVectors: true})
	if err != nil {
		return nil, err
	}
	return resultsToDocuments(results), nil
}

func (r *CoarseRetriever) searchMMR(ctx context.Context, queryVec []float64, cfg types.RetrievalConfig) ([]Document, error) {
	results, err := r.store.Search(ctx, queryVec, cfg.FetchK, SearchOptions{WithVectors: true})
	if err != nil {
		return nil, err
	}

	relevance := make([]float64, len(results))
	vectors := make([][]float64, len(results))
	// store scores depend on the collection distance (Euclid is lower-is-better),
	// so relevance is recomputed on the same cosine scale as redundancy
	for i, res := range results {
		relevance[i] = cosineSimilarity(queryVec, res.Document.Vector)
		vectors[i] = res.Document.Vector
	}

	picked := MaximalMarginalRelevance(relevance, vectors, cfg.Lambda, cfg.TopK)
	docs := make([]Document, 0, len(picked))
	for _, idx := range picked {
		docs = append(docs, results[idx].Document)
	}
	return docs, nil
}

func resultsToDocuments(results []VectorSearchResult) []Document {
	docs := make([]Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, res.Document)
	}
	return docs
}
