package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/internal/ctxkeys"
	"github.com/BaSui01/recipeflow/internal/turnlog"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// TurnsHandler 查询调用方最近的对话审计记录
type TurnsHandler struct {
	recorder turnlog.Recorder
	logger   *zap.Logger
}

// NewTurnsHandler 创建审计查询处理器
func NewTurnsHandler(recorder turnlog.Recorder, logger *zap.Logger) *TurnsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = turnlog.NopRecorder{}
	}
	return &TurnsHandler{recorder: recorder, logger: logger}
}

// HandleRecent 处理 GET /api/v1/turns?limit=N。认证开启时只返回调用方自己的记录。
func (h *TurnsHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 100 {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "limit must be between 1 and 100"), h.logger)
			return
		}
		limit = n
	}
	principal, _ := ctxkeys.Principal(r.Context())

	rows, err := h.recorder.Recent(r.Context(), principal, limit)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to load turns").WithCause(err), h.logger)
		return
	}

	resp := api.TurnsResponse{Turns: make([]api.TurnView, 0, len(rows))}
	for _, row := range rows {
		view := api.TurnView{
			TurnID:       row.TurnID,
			SessionID:    row.SessionID,
			Mode:         row.Mode,
			Retriever:    row.Retriever,
			Prompt:       row.Prompt,
			ResponseText: row.ResponseText,
			FnCalls:      row.FnCalls,
			InputTokens:  row.InputTokens,
			OutputTokens: row.OutputTokens,
			LatencyMS:    row.LatencyMS,
			ErrorCode:    row.ErrorCode,
			CreatedAt:    row.CreatedAt,
		}
		if json.Valid([]byte(row.RetrievalCfg)) {
			view.Config = json.RawMessage(row.RetrievalCfg)
		}
		resp.Turns = append(resp.Turns, view)
	}
	WriteJSON(w, http.StatusOK, resp)
}
