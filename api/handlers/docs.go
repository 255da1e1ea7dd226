package handlers

import (
	"net/http"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// DocsHandler 直接调用检索器，便于调试检索配置
type DocsHandler struct {
	retrievers   RetrieverBuilder
	defaults     types.RetrievalConfig
	concurrency  int
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewDocsHandler 创建文档检索处理器。concurrency 限制并发查询数，0 表示不限。
func NewDocsHandler(retrievers RetrieverBuilder, defaults types.RetrievalConfig, concurrency int, maxBodyBytes int64, logger *zap.Logger) *DocsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocsHandler{
		retrievers:   retrievers,
		defaults:     defaults,
		concurrency:  concurrency,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With(zap.String("component", "docs_handler")),
	}
}

// HandleQuery 处理 POST /api/v1/docs/query
func (h *DocsHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req api.DocsQueryRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}
	cfg, err := ResolveConfig(h.defaults, req.Config)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	retriever, err := h.retrievers(cfg)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	results, err := rag.QueryAll(r.Context(), retriever, req.Queries, h.concurrency)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Debug("docs query served",
		zap.Int("queries", len(req.Queries)),
		zap.String("retriever", string(cfg.Retriever)))
	WriteJSON(w, http.StatusOK, api.NewDocsQueryResponse(results))
}
