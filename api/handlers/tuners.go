package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// TunerGenerator 生成提示词调节建议，由 llm.TunerGenerator 实现
type TunerGenerator interface {
	Generate(ctx context.Context, req llm.TunerRequest) ([]string, error)
}

// TunersHandler 提示词调节接口
type TunersHandler struct {
	generator    TunerGenerator
	model        string
	defaults     types.RetrievalConfig
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewTunersHandler 创建调节建议处理器；model 为空时使用 Provider 默认模型
func NewTunersHandler(generator TunerGenerator, model string, defaults types.RetrievalConfig, maxBodyBytes int64, logger *zap.Logger) *TunersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TunersHandler{
		generator:    generator,
		model:        model,
		defaults:     defaults,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With(zap.String("component", "tuners_handler")),
	}
}

// HandleTuners 处理 POST /api/v1/tuners
func (h *TunersHandler) HandleTuners(w http.ResponseWriter, r *http.Request) {
	var req api.TunersRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}
	cfg, err := ResolveConfig(h.defaults, req.Config)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	tuners, err := h.generator.Generate(r.Context(), llm.TunerRequest{
		History:        req.ExistingChatHistory,
		PreviousTuners: req.PreviousTuners,
		Model:          h.model,
		Temperature:    cfg.Temperature,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if tuners == nil {
		tuners = []string{}
	}
	WriteJSON(w, http.StatusOK, api.TunersResponse{Tuners: tuners})
}
