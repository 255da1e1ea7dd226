package rag

import (
	"context"
	"fmt"

	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// Retriever answers a query with documents. One is composed per request.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string) ([]Document, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// ConstructorFactory returns the filter-construction LLM for a backend and model.
// It must not perform network calls.
type ConstructorFactory func(api types.SelfQueryAPI, model string) (QueryConstructor, error)

// RetrieverContext holds the long-lived collaborators shared by every request.
// It is built once at startup and passed to handlers explicitly.
type RetrieverContext struct {
	Store        VectorStore
	Embedder     Embedder
	Scorer       CrossEncoderScorer
	Constructors ConstructorFactory
	Schema       []AttributeInfo
	Reranker     RerankerConfig
	Observer     StageObserver
	Logger       *zap.Logger
}

// BuildRetriever composes the pipeline selected by cfg.Retriever. The config
// and the required collaborators are checked before anything touches the network.
func BuildRetriever(rc *RetrieverContext, cfg types.RetrievalConfig) (Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rc == nil || rc.Store == nil || rc.Embedder == nil {
		return nil, types.NewError(types.ErrConfigInvalid, "retriever context requires a vector store and an embedder")
	}

	logger := rc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	coarse := NewCoarseRetriever(rc.Store, rc.Embedder, rc.Observer, logger)

	var reranker *Reranker
	if cfg.Retriever == types.RetrieverReranker || cfg.Retriever == types.RetrieverSelfQueryChain {
		if rc.Scorer == nil {
			return nil, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("retriever %q requires a cross-encoder scorer", cfg.Retriever))
		}
		reranker = NewReranker(rc.Scorer, rc.Reranker, rc.Observer, logger)
	}

	switch cfg.Retriever {
	case types.RetrieverCoarse:
		return RetrieverFunc(func(ctx context.Context, query string) ([]Document, error) {
			return coarse.Retrieve(ctx, query, cfg)
		}), nil

	case types.RetrieverReranker:
		return RetrieverFunc(func(ctx context.Context, query string) ([]Document, error) {
			docs, err := coarse.Retrieve(ctx, query, cfg)
			if err != nil {
				return nil, err
			}
			return reranker.Rerank(ctx, docs, query, cfg.RerankTopN)
		}), nil

	case types.RetrieverSelfQueryChain:
		if rc.Constructors == nil {
			return nil, types.NewError(types.ErrConfigInvalid, "retriever \"self_query_chain\" requires a query constructor")
		}
		constructor, err := rc.Constructors(cfg.SelfQueryAPI, cfg.SelfQueryModel)
		if err != nil {
			return nil, types.NewError(types.ErrConfigInvalid, "self query backend unavailable").WithCause(err)
		}
		selfFilter := NewSelfFilter(rc.Embedder, constructor, rc.Schema, rc.Observer, logger)

		return RetrieverFunc(func(ctx context.Context, query string) ([]Document, error) {
			docs, err := coarse.Retrieve(ctx, query, cfg)
			if err != nil {
				return nil, err
			}
			filtered, err := selfFilter.Filter(ctx, docs, query)
			if err != nil {
				return nil, err
			}
			return reranker.Rerank(ctx, filtered, query, cfg.RerankTopN)
		}), nil
	}

	// unreachable after Validate
	return nil, types.NewError(types.ErrConfigInvalid, "invalid retriever: "+string(cfg.Retriever))
}
