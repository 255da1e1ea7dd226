package api

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
)

// =============================================================================
// 对话
// =============================================================================

// ChatRequest 一轮对话请求。config 中缺省的字段取服务端默认值。
type ChatRequest struct {
	ExistingChatHistory []types.Message `json:"existing_chat_history" validate:"max=200"`
	Prompt              string          `json:"prompt" validate:"required,max=8000"`
	SessionID           string          `json:"session_id,omitempty" validate:"omitempty,max=64"`
	Config              json.RawMessage `json:"config,omitempty"`
}

// ChatResponse 一轮对话的结果
type ChatResponse struct {
	LLMResponseText string            `json:"llm_response_text"`
	NewChatHistory  []types.Message   `json:"new_chat_history"`
	FnCalls         []json.RawMessage `json:"fn_calls"`
}

// StreamEvent 流式对话推送给客户端的一条更新（SSE data 与 websocket 帧共用）
type StreamEvent struct {
	Type    tools.StreamUpdateType `json:"type"`
	Message *types.Message         `json:"message,omitempty"`
	Result  *ChatResponse          `json:"result,omitempty"`
	Error   *ErrorInfo             `json:"error,omitempty"`
}

// ErrorInfo 错误信息
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewChatResponse 把 ChatResult 转为线上格式。fn_calls 中的内容块带 type 字段。
func NewChatResponse(res *tools.ChatResult) (*ChatResponse, error) {
	calls, err := EncodeBlocks(res.FnCalls)
	if err != nil {
		return nil, err
	}
	history := res.History
	if history == nil {
		history = []types.Message{}
	}
	return &ChatResponse{
		LLMResponseText: res.FinalText,
		NewChatHistory:  history,
		FnCalls:         calls,
	}, nil
}

// EncodeBlocks 逐个编码内容块；空输入返回空数组而非 null
func EncodeBlocks(blocks []types.ContentBlock) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		raw, err := types.MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// NewStreamEvent 转换一条流式更新
func NewStreamEvent(u tools.StreamUpdate) (StreamEvent, error) {
	ev := StreamEvent{Type: u.Type, Message: u.Message}
	if u.Result != nil {
		res, err := NewChatResponse(u.Result)
		if err != nil {
			return StreamEvent{}, err
		}
		ev.Result = res
	}
	if u.Error != nil {
		ev.Error = NewErrorInfo(u.Error)
	}
	return ev, nil
}

// NewErrorInfo 从 types.Error 提取对外可见的字段
func NewErrorInfo(err *types.Error) *ErrorInfo {
	return &ErrorInfo{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable}
}

// =============================================================================
// 文档检索
// =============================================================================

// DocsQueryRequest 直接调用检索器
type DocsQueryRequest struct {
	Queries []string        `json:"queries" validate:"required,min=1,max=16,dive,required,max=1000"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// DocumentView 返回给客户端的文档，不含向量与内部 ID
type DocumentView struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// DocsQueryResponse 以查询文本为键的检索结果
type DocsQueryResponse struct {
	Queries map[string][]DocumentView `json:"queries"`
}

// NewDocsQueryResponse 转换检索结果。重复的查询只保留一份。
func NewDocsQueryResponse(results []rag.QueryResult) DocsQueryResponse {
	resp := DocsQueryResponse{Queries: make(map[string][]DocumentView, len(results))}
	for _, r := range results {
		views := make([]DocumentView, 0, len(r.Documents))
		for _, d := range r.Documents {
			md := d.Metadata
			if md == nil {
				md = map[string]any{}
			}
			views = append(views, DocumentView{PageContent: d.Content, Metadata: md})
		}
		resp.Queries[r.Query] = views
	}
	return resp
}

// =============================================================================
// 提示词调节
// =============================================================================

// TunersRequest 请求下一轮提问的改写建议
type TunersRequest struct {
	ExistingChatHistory []types.Message `json:"existing_chat_history" validate:"max=200"`
	PreviousTuners      []string        `json:"previous_tuners" validate:"max=64,dive,max=200"`
	Config              json.RawMessage `json:"config,omitempty"`
}

// TunersResponse 调节建议
type TunersResponse struct {
	Tuners []string `json:"tuners"`
}

// =============================================================================
// 审计
// =============================================================================

// TurnView 审计记录的对外视图
type TurnView struct {
	TurnID       string          `json:"turn_id"`
	SessionID    string          `json:"session_id,omitempty"`
	Mode         string          `json:"mode"`
	Retriever    string          `json:"retriever"`
	Config       json.RawMessage `json:"config,omitempty"`
	Prompt       string          `json:"prompt"`
	ResponseText string          `json:"response_text"`
	FnCalls      int             `json:"fn_calls"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	LatencyMS    int64           `json:"latency_ms"`
	ErrorCode    string          `json:"error_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TurnsResponse 最近的对话记录
type TurnsResponse struct {
	Turns []TurnView `json:"turns"`
}
