package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/internal/ctxkeys"
	"github.com/BaSui01/recipeflow/internal/telemetry"
	"github.com/BaSui01/recipeflow/internal/turnlog"
	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 对话接口 Handler
// =============================================================================

// TurnRunner 执行一轮对话，由 tools.ConversationRunner 实现
type TurnRunner interface {
	Run(ctx context.Context, req tools.TurnRequest) (*tools.ChatResult, error)
	RunStream(ctx context.Context, req tools.TurnRequest) <-chan tools.StreamUpdate
}

// RetrieverBuilder 按请求配置组装检索器，不得发起网络调用
type RetrieverBuilder func(cfg types.RetrievalConfig) (rag.Retriever, error)

// TurnObserver 接收每轮对话的结果，通常是 metrics.Collector
type TurnObserver interface {
	RecordTurn(mode string, retriever types.RetrieverKind, duration time.Duration, err error)
}

// ChatConfig ChatHandler 的依赖与限制
type ChatConfig struct {
	Runner      TurnRunner
	Retrievers  RetrieverBuilder
	Defaults    types.RetrievalConfig
	Recorder    turnlog.Recorder
	Observer    TurnObserver
	Instruments *telemetry.TurnInstruments

	MaxBodyBytes   int64
	RequestTimeout time.Duration

	// WebSocket 允许的 Origin 模式，为空时只接受同源握手
	OriginPatterns []string
}

// ChatHandler 对话接口处理器
type ChatHandler struct {
	cfg    ChatConfig
	logger *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewChatHandler 创建对话处理器
func NewChatHandler(cfg ChatConfig, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = turnlog.NopRecorder{}
	}
	return &ChatHandler{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "chat_handler")),
		closing: make(chan struct{}),
	}
}

// Shutdown 通知所有 WebSocket 连接以 going away 关闭。http.Server.Shutdown
// 不跟踪被劫持的连接，需注册为关闭回调。可重复调用。
func (h *ChatHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// turn 一轮对话从解析到记录所需的状态
type turn struct {
	id      string
	mode    turnlog.Mode
	req     api.ChatRequest
	config  types.RetrievalConfig
	start   time.Time
	request tools.TurnRequest
}

// prepare 解析配置、组装检索器。检索器组装失败属于客户端配置错误。
func (h *ChatHandler) prepare(mode turnlog.Mode, req api.ChatRequest) (*turn, error) {
	cfg, err := ResolveConfig(h.cfg.Defaults, req.Config)
	if err != nil {
		return nil, err
	}
	retriever, err := h.cfg.Retrievers(cfg)
	if err != nil {
		return nil, err
	}
	return &turn{
		id:     uuid.NewString(),
		mode:   mode,
		req:    req,
		config: cfg,
		start:  time.Now(),
		request: tools.TurnRequest{
			History:   req.ExistingChatHistory,
			Prompt:    req.Prompt,
			Config:    cfg,
			Retriever: retriever,
		},
	}, nil
}

// finish 记录指标、遥测与审计。审计写入与客户端连接解耦。
func (h *ChatHandler) finish(ctx context.Context, t *turn, res *tools.ChatResult, err error) {
	d := time.Since(t.start)
	if h.cfg.Observer != nil {
		h.cfg.Observer.RecordTurn(string(t.mode), t.config.Retriever, d, err)
	}

	entry := turnlog.Turn{
		TurnID:    t.id,
		SessionID: t.req.SessionID,
		Mode:      t.mode,
		Config:    t.config,
		Prompt:    t.req.Prompt,
		Latency:   d,
		Err:       err,
		At:        t.start,
	}
	entry.RequestID, _ = ctxkeys.RequestID(ctx)
	entry.Principal, _ = ctxkeys.Principal(ctx)
	if res != nil {
		entry.Response = res.FinalText
		entry.FnCalls = countToolUses(res.FnCalls)
		entry.Usage = res.Usage
	}
	h.cfg.Instruments.Record(ctx, string(t.mode), string(t.config.Retriever), entry.FnCalls, d, err)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := h.cfg.Recorder.Record(rctx, entry); rerr != nil {
		h.logger.Warn("turn audit failed", zap.String("turn_id", t.id), zap.Error(rerr))
	}
}

func countToolUses(blocks []types.ContentBlock) int {
	n := 0
	for _, b := range blocks {
		if _, ok := b.(types.ToolUseBlock); ok {
			n++
		}
	}
	return n
}

func (h *ChatHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, h.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// HandleChat 处理 POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.cfg.MaxBodyBytes, h.logger); err != nil {
		return
	}
	t, err := h.prepare(turnlog.ModeChat, req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	ctx, cancel := h.withTimeout(ctxkeys.WithTurnID(r.Context(), t.id))
	defer cancel()

	res, err := h.cfg.Runner.Run(ctx, t.request)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	h.finish(ctx, t, res, err)
	if err != nil {
		WriteError(w, r, turnError(err), h.logger)
		return
	}

	resp, err := api.NewChatResponse(res)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.Header().Set("X-Turn-ID", t.id)
	WriteJSON(w, http.StatusOK, resp)
}

// turnError 把超时映射为上游错误，其余原样返回
func turnError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamError, "turn timed out").WithCause(err).WithHTTPStatus(http.StatusGatewayTimeout)
	}
	return err
}

// =============================================================================
// 🌊 SSE 流式对话
// =============================================================================

// HandleStream 处理 POST /api/v1/chat/stream。每条更新写为一个 data 事件；
// 失败以 event: error 结束，成功以 data: [DONE] 结束。
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.cfg.MaxBodyBytes, h.logger); err != nil {
		return
	}
	t, err := h.prepare(turnlog.ModeStream, req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	rc := http.NewResponseController(w)
	// 流式响应不受服务器 WriteTimeout 限制，总时长由 RequestTimeout 约束
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.Header().Set("X-Turn-ID", t.id)
	w.WriteHeader(http.StatusOK)

	ctx, cancel := h.withTimeout(ctxkeys.WithTurnID(r.Context(), t.id))
	defer cancel()

	sse := &sseWriter{w: w, rc: rc}
	sentError := false
	res, terr := h.pump(ctx, t, func(ev api.StreamEvent) error {
		if ev.Type == tools.StreamUpdateError {
			sentError = true
			return sse.event("error", ev)
		}
		return sse.data(ev)
	})
	h.finish(ctx, t, res, terr)

	switch {
	case terr == nil:
		_ = sse.raw("data: [DONE]\n\n")
	case !sentError && r.Context().Err() == nil:
		// 超时时流没有终止更新，补发错误事件
		_ = sse.event("error", errorEvent(turnError(terr)))
	}
}

// pump 把 RunStream 的更新逐条交给 send，返回最终结果或终止错误。
// 通道在没有终止更新的情况下关闭说明 ctx 已取消。
func (h *ChatHandler) pump(ctx context.Context, t *turn, send func(api.StreamEvent) error) (*tools.ChatResult, error) {
	var (
		result  *tools.ChatResult
		termErr error
		sendErr error
	)
	for u := range h.cfg.Runner.RunStream(ctx, t.request) {
		switch u.Type {
		case tools.StreamUpdateDone:
			result = u.Result
		case tools.StreamUpdateError:
			termErr = u.Error
		}
		if sendErr != nil {
			continue // 客户端已断开，继续排空通道
		}
		ev, err := api.NewStreamEvent(u)
		if err != nil {
			sendErr = err
			continue
		}
		if err := send(ev); err != nil {
			sendErr = err
			h.logger.Debug("stream client gone", zap.String("turn_id", t.id), zap.Error(err))
		}
	}

	switch {
	case termErr != nil:
		return nil, termErr
	case result == nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case result == nil:
		return nil, types.NewError(types.ErrInternalError, "stream ended without a result")
	case sendErr != nil:
		return result, sendErr
	}
	return result, nil
}

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseWriter) data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.raw("data: " + string(b) + "\n\n")
}

func (s *sseWriter) event(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.raw("event: " + name + "\ndata: " + string(b) + "\n\n")
}

func (s *sseWriter) raw(frame string) error {
	if _, err := s.w.Write([]byte(frame)); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
