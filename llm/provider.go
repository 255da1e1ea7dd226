package llm

import (
	"context"

	"github.com/BaSui01/recipeflow/types"
)

// StopReason is why the model stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// ChatRequest is one model call: the full history plus generation parameters.
type ChatRequest struct {
	Model       string             `json:"model,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []types.Message    `json:"messages"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"top_p,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

// ChatResponse is a completed assistant reply.
type ChatResponse struct {
	ID         string           `json:"id,omitempty"`
	Model      string           `json:"model,omitempty"`
	Message    types.Message    `json:"message"`
	StopReason StopReason       `json:"stop_reason"`
	Usage      types.TokenUsage `json:"usage"`
}

// Provider 定义聊天模型的统一接口。
// 工具通过 ChatRequest.Tools 声明，模型在回复中返回 tool_use 块，
// 工具的执行由 llm/tools 包负责。
type Provider interface {
	// Completion 发起同步请求，返回完整回复
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式请求。通道按顺序输出事件并在结束后关闭；
	// 传输错误以 StreamEventError 事件的形式出现在通道末尾。
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// TextGenerator is a plain prompt-in, text-out model used for auxiliary
// tasks such as building metadata filters.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Name() string
}
