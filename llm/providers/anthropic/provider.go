package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

const (
	providerName     = "anthropic"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultModel     = "claude-3-5-sonnet-20240620"
	defaultMaxTokens = 4096
)

// Provider 实现 Anthropic Messages API 的 llm.Provider。
// 与 OpenAI 的差异：
// 1. 认证使用 x-api-key 请求头而非 Bearer Token
// 2. system 消息单独通过 system 字段传递
// 3. 流式响应使用 SSE，按内容块下发增量
type Provider struct {
	cfg    providers.AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建 Anthropic Provider
func NewProvider(cfg providers.AnthropicConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second // 长回复 + 工具轮次
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}

	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("provider", providerName)),
	}
}

// Name 实现 llm.Provider
func (p *Provider) Name() string { return providerName }

// ====== 请求/响应结构 ======

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        int             `json:"top_k,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string            `json:"id"`
	Role       types.Role        `json:"role"`
	Content    []json.RawMessage `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      *anthropicUsage   `json:"usage,omitempty"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"` // text_delta, input_json_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// 流式事件：message_start, content_block_start, content_block_delta,
// content_block_stop, message_delta, message_stop, ping, error
type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Index        int                    `json:"index"`
	Delta        *anthropicDelta        `json:"delta,omitempty"`
	ContentBlock *anthropicContentBlock `json:"content_block,omitempty"`
	Message      *anthropicResponse     `json:"message,omitempty"`
	Usage        *anthropicUsage        `json:"usage,omitempty"`
	Error        *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", p.cfg.Version)
	req.Header.Set("Content-Type", "application/json")
}

// convertMessages 拆出 system 消息，并丢弃 API 不接受的空文本块与空消息
func convertMessages(system string, msgs []types.Message) (string, []types.Message) {
	systemParts := make([]string, 0, 1)
	if system != "" {
		systemParts = append(systemParts, system)
	}

	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if text, ok := m.FirstText(); ok && text != "" {
				systemParts = append(systemParts, text)
			}
			continue
		}

		blocks := make([]types.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			if t, ok := b.(types.TextBlock); ok && strings.TrimSpace(t.Text) == "" {
				continue
			}
			blocks = append(blocks, b)
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, types.Message{Role: m.Role, Content: blocks})
	}
	return strings.Join(systemParts, "\n\n"), out
}

func convertTools(tools []types.ToolSchema) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) anthropicRequest {
	system, messages := convertMessages(req.System, req.Messages)
	body := anthropicRequest{
		Model:     providers.ChooseModel(req.Model, p.cfg.Model, defaultModel),
		Messages:  messages,
		System:    system,
		MaxTokens: req.MaxTokens,
		TopK:      req.TopK,
		Stream:    stream,
		Tools:     convertTools(req.Tools),
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	// zero is a valid deterministic setting and must not fall back to the API default
	t := req.Temperature
	body.Temperature = &t
	if req.TopP > 0 {
		tp := req.TopP
		body.TopP = &tp
	}
	return body
}

func (p *Provider) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode request").WithCause(err).WithProvider(providerName)
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err).WithProvider(providerName)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), providerName)
	}
	return resp, nil
}

// Completion 实现 llm.Provider
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildRequest(req, false)
	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(providerName)
	}
	return toChatResponse(ar)
}

func toChatResponse(ar anthropicResponse) (*llm.ChatResponse, error) {
	msg := types.Message{Role: types.RoleAssistant, Content: make([]types.ContentBlock, 0, len(ar.Content))}
	for _, raw := range ar.Content {
		block, err := types.UnmarshalBlock(raw)
		if err != nil {
			// thinking 等未知块类型直接跳过
			continue
		}
		msg.Content = append(msg.Content, block)
	}

	out := &llm.ChatResponse{
		ID:         ar.ID,
		Model:      ar.Model,
		Message:    msg,
		StopReason: llm.StopReason(ar.StopReason),
	}
	if ar.Usage != nil {
		out.Usage = types.TokenUsage{InputTokens: ar.Usage.InputTokens, OutputTokens: ar.Usage.OutputTokens}
	}
	return out, nil
}

// Stream 实现 llm.Provider。HTTP 层错误同步返回；建立连接后的错误作为
// StreamEventError 事件出现在通道末尾。
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	body := p.buildRequest(req, true)
	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamEvent)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		p.readStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

func (p *Provider) readStream(ctx context.Context, body io.Reader, ch chan<- llm.StreamEvent) {
	emit := func(ev llm.StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		emit(llm.StreamEvent{Type: llm.StreamEventError, Err: err})
	}

	reader := bufio.NewReader(body)
	var stopReason llm.StopReason
	usage := types.TokenUsage{}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				fail(types.NewError(types.ErrUpstreamError, "stream ended before message_stop").
					WithRetryable(true).WithProvider(providerName))
			} else {
				fail(providers.TransportError(err, providerName))
			}
			return
		}

		line = strings.TrimSpace(line)
		// SSE 格式：event: <type>\ndata: <json>，事件类型同样出现在 data 中
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			fail(types.NewError(types.ErrUpstreamError, "decode stream event").
				WithCause(err).WithProvider(providerName))
			return
		}

		switch ev.Type {
		case "message_start":
			role := types.RoleAssistant
			if ev.Message != nil {
				if ev.Message.Role != "" {
					role = ev.Message.Role
				}
				if ev.Message.Usage != nil {
					usage.InputTokens = ev.Message.Usage.InputTokens
					usage.OutputTokens = ev.Message.Usage.OutputTokens
				}
			}
			if !emit(llm.StreamEvent{Type: llm.StreamEventMessageStart, Role: role}) {
				return
			}

		case "content_block_start":
			out := llm.StreamEvent{Type: llm.StreamEventContentBlockStart, Index: ev.Index}
			if ev.ContentBlock != nil {
				switch ev.ContentBlock.Type {
				case "tool_use":
					// input 在 content_block_start 中总是空对象，真实参数通过 input_json_delta 下发
					out.ToolUse = &types.ToolUseBlock{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
				case "text":
					out.Text = ev.ContentBlock.Text
				}
			}
			if !emit(out) {
				return
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			out := llm.StreamEvent{Type: llm.StreamEventContentBlockDelta, Index: ev.Index}
			switch ev.Delta.Type {
			case "text_delta":
				out.Text = ev.Delta.Text
			case "input_json_delta":
				out.InputFragment = ev.Delta.PartialJSON
			default:
				continue
			}
			if !emit(out) {
				return
			}

		case "content_block_stop":
			if !emit(llm.StreamEvent{Type: llm.StreamEventContentBlockStop, Index: ev.Index}) {
				return
			}

		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = llm.StopReason(ev.Delta.StopReason)
			}
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}

		case "message_stop":
			u := usage
			emit(llm.StreamEvent{Type: llm.StreamEventMessageStop, StopReason: stopReason, Usage: &u})
			return

		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
				if ev.Error.Type == "overloaded_error" {
					fail(types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(providerName))
					return
				}
			}
			fail(types.NewError(types.ErrUpstreamError, msg).WithProvider(providerName))
			return

		default:
			// ping
		}
	}
}
