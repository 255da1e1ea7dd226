package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// DefaultMaxToolRounds bounds the tool round trips of one turn.
const DefaultMaxToolRounds = 8

// RunnerConfig 配置对话循环
type RunnerConfig struct {
	Model         string `json:"model" yaml:"model" env:"MODEL"`                               // 为空时使用 Provider 默认模型
	MaxToolRounds int    `json:"max_tool_rounds" yaml:"max_tool_rounds" env:"MAX_TOOL_ROUNDS"` // 单轮对话最多的工具往返次数
}

// LLMObserver receives one observation per model call.
type LLMObserver interface {
	ObserveLLMCall(provider, model string, duration time.Duration, usage types.TokenUsage, err error)
}

type nopLLMObserver struct{}

func (nopLLMObserver) ObserveLLMCall(string, string, time.Duration, types.TokenUsage, error) {}

// ExecutorFactory builds the tool executor for one request's retriever.
type ExecutorFactory func(retriever rag.Retriever) *Executor

// TurnRequest is one user turn.
type TurnRequest struct {
	History   []types.Message       // 调用方持有的历史，不会被修改
	Prompt    string                // 本轮用户输入
	Config    types.RetrievalConfig // 生成参数与检索配置
	Retriever rag.Retriever         // 本请求组装的检索器
}

// ChatResult is the outcome of a completed turn.
type ChatResult struct {
	FinalText string               `json:"llm_response_text"`
	History   []types.Message      `json:"new_chat_history"`
	FnCalls   []types.ContentBlock `json:"fn_calls"`
	Usage     types.TokenUsage     `json:"-"` // 本轮所有模型调用的累计用量
}

// ConversationRunner drives the model/tool loop for one turn at a time. It
// holds no per-turn state and is safe for concurrent use.
type ConversationRunner struct {
	provider llm.Provider
	tools    ExecutorFactory
	config   RunnerConfig
	observer LLMObserver
	logger   *zap.Logger
}

// NewConversationRunner 创建对话循环
func NewConversationRunner(provider llm.Provider, tools ExecutorFactory, config RunnerConfig, logger *zap.Logger) *ConversationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = DefaultMaxToolRounds
	}
	return &ConversationRunner{
		provider: provider,
		tools:    tools,
		config:   config,
		observer: nopLLMObserver{},
		logger:   logger.With(zap.String("component", "conversation")),
	}
}

// WithLLMObserver reports every model call. It returns r for chaining.
func (r *ConversationRunner) WithLLMObserver(o LLMObserver) *ConversationRunner {
	if o != nil {
		r.observer = o
	}
	return r
}

// Run executes one non-streaming turn. On a tool_use stop every requested
// tool runs and the results go back as one user message; any other stop
// ends the turn with the reply's first text block. Model failures are
// returned as LLM_CALL_ERROR without retry and the partial history is dropped.
func (r *ConversationRunner) Run(ctx context.Context, req TurnRequest) (*ChatResult, error) {
	exec := r.tools(req.Retriever)
	history := startHistory(req.History, req.Prompt)
	var fnCalls []types.ContentBlock
	var usage types.TokenUsage

	r.logger.Info("turn started", zap.String("prompt", req.Prompt), zap.Int("history", len(req.History)))

	for round := 0; ; round++ {
		resp, err := r.complete(ctx, r.chatRequest(history, req.Config, exec))
		if err != nil {
			return nil, err
		}
		history = append(history, resp.Message)
		usage.Add(resp.Usage)

		uses := resp.Message.ToolUses()
		if resp.StopReason != llm.StopToolUse || len(uses) == 0 {
			text, _ := resp.Message.FirstText()
			r.logger.Info("turn completed",
				zap.Int("tool_rounds", round),
				zap.String("stop_reason", string(resp.StopReason)))
			return &ChatResult{FinalText: text, History: history, FnCalls: fnCalls, Usage: usage}, nil
		}

		if round >= r.config.MaxToolRounds {
			return nil, maxRoundsError(r.config.MaxToolRounds)
		}

		fnCalls = append(fnCalls, resp.Message.Content...)
		r.logger.Debug("executing tools", zap.Int("round", round+1), zap.Int("calls", len(uses)))
		results := exec.Execute(ctx, resp.Message.Content)
		history = append(history, types.NewToolResultMessage(results))
	}
}

func (r *ConversationRunner) chatRequest(history []types.Message, cfg types.RetrievalConfig, exec *Executor) *llm.ChatRequest {
	system := cfg.SystemPrompt
	if system == "" {
		system = llm.DefaultSystemPrompt
	}
	return &llm.ChatRequest{
		Model:       r.config.Model,
		System:      system,
		Messages:    history,
		Tools:       exec.Schemas(),
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.GenTopK,
		MaxTokens:   cfg.MaxTokens,
	}
}

func (r *ConversationRunner) complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := r.provider.Completion(ctx, req)
	var usage types.TokenUsage
	if resp != nil {
		usage = resp.Usage
	}
	r.observer.ObserveLLMCall(r.provider.Name(), req.Model, time.Since(start), usage, err)
	if err != nil {
		return nil, llmCallError(err)
	}
	return resp, nil
}

// startHistory copies the caller's history and appends the user prompt.
func startHistory(existing []types.Message, prompt string) []types.Message {
	history := make([]types.Message, 0, len(existing)+4)
	for _, m := range existing {
		history = append(history, m.Clone())
	}
	return append(history, types.NewUserMessage(prompt))
}

func llmCallError(err error) error {
	if types.HasCode(err, types.ErrLLMCall) {
		return err
	}
	return types.NewError(types.ErrLLMCall, "model call failed").
		WithCause(err).
		WithRetryable(types.IsRetryable(err))
}

func maxRoundsError(limit int) error {
	return types.NewError(types.ErrMaxToolRounds,
		fmt.Sprintf("model requested tools after %d tool rounds", limit))
}
