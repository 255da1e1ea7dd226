package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// QueryConstructor is the auxiliary LLM that turns a natural-language query
// into a StructuredQuery over the given metadata schema.
type QueryConstructor interface {
	Construct(ctx context.Context, query, contentDescription string, schema []AttributeInfo) (*StructuredQuery, error)
}

// SelfFilter narrows coarse candidates with an LLM-built metadata filter. The
// search runs over an ephemeral index holding only those candidates, so it can
// drop or reorder documents but never introduce new ones.
type SelfFilter struct {
	embedder    Embedder
	constructor QueryConstructor
	schema      []AttributeInfo
	observer    StageObserver
	logger      *zap.Logger
}

// NewSelfFilter 创建自过滤阶段，schema 为空时使用菜谱元数据 schema
func NewSelfFilter(embedder Embedder, constructor QueryConstructor, schema []AttributeInfo, observer StageObserver, logger *zap.Logger) *SelfFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if len(schema) == 0 {
		schema = RecipeMetadataSchema()
	}
	return &SelfFilter{
		embedder:    embedder,
		constructor: constructor,
		schema:      schema,
		observer:    observer,
		logger:      logger.With(zap.String("component", "self_filter")),
	}
}

// Filter runs at most two attempts: with the metadata schema, then with an
// empty schema (plain search, no filter construction). A second failure is
// returned as SELF_FILTER_ERROR.
func (f *SelfFilter) Filter(ctx context.Context, docs []Document, query string) (out []Document, err error) {
	ctx, span := tracer.Start(ctx, "rag."+StageSelfFilter)
	start := time.Now()
	defer func() {
		f.observer.ObserveRetrievalStage(StageSelfFilter, time.Since(start), len(out), err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	index, err := f.buildIndex(ctx, docs)
	if err != nil {
		return nil, types.NewError(types.ErrSelfFilter, "build ephemeral index").WithCause(err)
	}
	if len(docs) == 0 {
		return []Document{}, nil
	}

	out, firstErr := f.attempt(ctx, index, len(docs), query, f.schema)
	if firstErr == nil {
		span.SetAttributes(attribute.Int("rag.self_filter.attempts", 1))
		return out, nil
	}

	f.logger.Warn("self filter attempt failed, retrying without metadata schema",
		zap.String("query", query),
		zap.Error(firstErr))

	out, err = f.attempt(ctx, index, len(docs), query, nil)
	span.SetAttributes(attribute.Int("rag.self_filter.attempts", 2))
	if err != nil {
		return nil, types.NewError(types.ErrSelfFilter,
			fmt.Sprintf("self filter failed twice (first: %v)", firstErr)).WithCause(err)
	}
	return out, nil
}

// buildIndex embeds only the documents that came back without a stored vector.
func (f *SelfFilter) buildIndex(ctx context.Context, docs []Document) (*InMemoryVectorStore, error) {
	index := NewInMemoryVectorStore(f.logger)
	if len(docs) == 0 {
		return index, nil
	}

	indexed := make([]Document, len(docs))
	copy(indexed, docs)

	var missing []int
	for i, d := range indexed {
		if len(d.Vector) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = indexed[i].Content
		}
		vectors, err := f.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(missing))
		}
		for j, i := range missing {
			indexed[i].Vector = vectors[j]
		}
	}

	if err := index.AddDocuments(ctx, indexed); err != nil {
		return nil, err
	}
	return index, nil
}

func (f *SelfFilter) attempt(ctx context.Context, index *InMemoryVectorStore, size int, query string, schema []AttributeInfo) ([]Document, error) {
	sq := &StructuredQuery{Query: query}

	if len(schema) > 0 {
		if f.constructor == nil {
			return nil, fmt.Errorf("no query constructor configured")
		}
		constructed, err := f.constructor.Construct(ctx, query, DocumentContentDescription, schema)
		if err != nil {
			return nil, fmt.Errorf("construct filter: %w", err)
		}
		if constructed == nil {
			return nil, fmt.Errorf("construct filter: empty structured query")
		}
		if constructed.Filter != nil {
			if err := constructed.Filter.Validate(schema); err != nil {
				return nil, fmt.Errorf("invalid filter: %w", err)
			}
		}
		sq = constructed
	}

	searchQuery := strings.TrimSpace(sq.Query)
	if searchQuery == "" {
		searchQuery = query
	}
	k := size
	if sq.Limit > 0 && sq.Limit < k {
		k = sq.Limit
	}

	vec, err := f.embedder.EmbedQuery(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := index.Search(ctx, vec, k, SearchOptions{Filter: sq.Filter, WithVectors: true})
	if err != nil {
		return nil, fmt.Errorf("filtered search: %w", err)
	}

	f.logger.Debug("self filter search completed",
		zap.String("search_query", searchQuery),
		zap.Bool("filtered", sq.Filter != nil),
		zap.Int("candidates", size),
		zap.Int("documents", len(results)))

	return resultsToDocuments(results), nil
}
