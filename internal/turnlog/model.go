package turnlog

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/recipeflow/types"
)

// Mode 区分对话的传输方式
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeStream    Mode = "stream"
	ModeWebSocket Mode = "websocket"
)

// Turn 一轮对话的审计信息
type Turn struct {
	TurnID    string
	RequestID string
	SessionID string
	Principal string
	Mode      Mode
	Config    types.RetrievalConfig
	Prompt    string
	Response  string
	FnCalls   int
	Usage     types.TokenUsage
	Latency   time.Duration
	Err       error
	At        time.Time
}

// ChatTurn chat_turns 表的行，列定义见 internal/migration
type ChatTurn struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	TurnID       string    `gorm:"column:turn_id;size:64;uniqueIndex:idx_chat_turns_turn_id"`
	RequestID    string    `gorm:"column:request_id;size:64"`
	SessionID    string    `gorm:"column:session_id;size:64;index:idx_chat_turns_session_id"`
	Principal    string    `gorm:"column:principal;size:255;index:idx_chat_turns_principal"`
	Mode         string    `gorm:"column:mode;size:16"`
	Retriever    string    `gorm:"column:retriever;size:32"`
	RetrievalCfg string    `gorm:"column:retrieval_cfg"`
	Prompt       string    `gorm:"column:prompt"`
	ResponseText string    `gorm:"column:response_text"`
	FnCalls      int       `gorm:"column:fn_calls"`
	InputTokens  int       `gorm:"column:input_tokens"`
	OutputTokens int       `gorm:"column:output_tokens"`
	LatencyMS    int64     `gorm:"column:latency_ms"`
	ErrorCode    string    `gorm:"column:error_code;size:64"`
	ErrorMessage string    `gorm:"column:error_message"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_chat_turns_created_at"`
}

// TableName 实现 gorm 的 Tabler
func (ChatTurn) TableName() string { return "chat_turns" }

// row 把 Turn 转成表行。系统提示词可能很长，审计时不保存。
func row(t Turn) ChatTurn {
	cfg := t.Config
	cfg.SystemPrompt = ""
	cfgJSON, _ := json.Marshal(cfg)

	r := ChatTurn{
		TurnID:       t.TurnID,
		RequestID:    t.RequestID,
		SessionID:    t.SessionID,
		Principal:    t.Principal,
		Mode:         string(t.Mode),
		Retriever:    string(t.Config.Retriever),
		RetrievalCfg: string(cfgJSON),
		Prompt:       t.Prompt,
		ResponseText: t.Response,
		FnCalls:      t.FnCalls,
		InputTokens:  t.Usage.InputTokens,
		OutputTokens: t.Usage.OutputTokens,
		LatencyMS:    t.Latency.Milliseconds(),
		CreatedAt:    t.At.UTC(),
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if t.Err != nil {
		r.ErrorCode = string(types.GetErrorCode(t.Err))
		if r.ErrorCode == "" {
			r.ErrorCode = string(types.ErrInternalError)
		}
		r.ErrorMessage = t.Err.Error()
	}
	return r
}
