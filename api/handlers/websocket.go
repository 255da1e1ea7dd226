package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/internal/ctxkeys"
	"github.com/BaSui01/recipeflow/internal/turnlog"
	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// HandleWebSocket 处理 GET /api/v1/chat/ws。客户端每发送一个 ChatRequest 帧，
// 服务端回推该轮的 StreamEvent 帧，以 done 或 error 结束；连接可承载多轮对话。
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket handshake failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-h.closing:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		case <-done:
		}
	}()

	limit := h.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	conn.SetReadLimit(limit)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "expected a JSON text frame")
			return
		}

		if err := h.wsTurn(ctx, conn, data); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

// wsTurn 处理一帧请求。请求错误以 error 帧回复而不断开连接；只返回写失败。
func (h *ChatHandler) wsTurn(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var req api.ChatRequest
	if err := decodeJSON(bytes.NewReader(data), &req); err != nil {
		return writeFrame(ctx, conn, errorEvent(err))
	}
	t, err := h.prepare(turnlog.ModeWebSocket, req)
	if err != nil {
		return writeFrame(ctx, conn, errorEvent(err))
	}

	tctx, cancel := h.withTimeout(ctxkeys.WithTurnID(ctx, t.id))
	defer cancel()

	terminal := false
	res, terr := h.pump(tctx, t, func(ev api.StreamEvent) error {
		terminal = terminal || ev.Type == tools.StreamUpdateDone || ev.Type == tools.StreamUpdateError
		return writeFrame(tctx, conn, ev)
	})
	h.finish(tctx, t, res, terr)

	if terr == nil || terminal {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// 超时或流异常结束时没有终止帧，补发一个
	return writeFrame(ctx, conn, errorEvent(turnError(terr)))
}

func errorEvent(err error) api.StreamEvent {
	te, ok := types.AsError(err)
	if !ok {
		te = types.NewError(types.ErrInternalError, "internal error")
	}
	return api.StreamEvent{Type: tools.StreamUpdateError, Error: api.NewErrorInfo(te)}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, ev api.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
