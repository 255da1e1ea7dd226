// Package types provides core types used across the recipeflow service.
// This package has ZERO dependencies on other recipeflow packages to avoid circular imports.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType is the discriminator of a ContentBlock on the wire.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a tagged union of TextBlock, ToolUseBlock and ToolResultBlock.
// The unexported method seals the set; consumers switch on the concrete type.
type ContentBlock interface {
	BlockType() BlockType
	sealed()
}

// TextBlock 文本内容块
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock 模型发起的工具调用请求
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock 工具调用结果，ToolUseID 与请求 ID 一一对应
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) BlockType() BlockType       { return BlockText }
func (ToolUseBlock) BlockType() BlockType    { return BlockToolUse }
func (ToolResultBlock) BlockType() BlockType { return BlockToolResult }

func (TextBlock) sealed()       {}
func (ToolUseBlock) sealed()    {}
func (ToolResultBlock) sealed() {}

// Message represents a conversation message.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserMessage creates a user message holding a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantMessage creates an assistant message holding a single text block.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewToolResultMessage folds tool results into one user message.
func NewToolResultMessage(results []ToolResultBlock) Message {
	blocks := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r)
	}
	return Message{Role: RoleUser, Content: blocks}
}

// FirstText returns the text of the first text block, if any.
func (m Message) FirstText() (string, bool) {
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			return t.Text, true
		}
	}
	return "", false
}

// ToolUses returns the tool-use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Clone returns a copy whose content slice can be appended to independently.
func (m Message) Clone() Message {
	content := make([]ContentBlock, len(m.Content))
	copy(content, m.Content)
	return Message{Role: m.Role, Content: content}
}

// ====== JSON 编解码 ======

type wireBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   *string         `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalBlock encodes a content block in the Anthropic wire shape.
func MarshalBlock(b ContentBlock) ([]byte, error) {
	switch v := b.(type) {
	case TextBlock:
		// text must always be present, even when empty
		return json.Marshal(struct {
			Type BlockType `json:"type"`
			Text string    `json:"text"`
		}{BlockText, v.Text})
	case ToolUseBlock:
		input := v.Input
		if len(bytes.TrimSpace(input)) == 0 {
			input = json.RawMessage("{}")
		}
		return json.Marshal(wireBlock{Type: BlockToolUse, ID: v.ID, Name: v.Name, Input: input})
	case ToolResultBlock:
		content := v.Content
		return json.Marshal(wireBlock{Type: BlockToolResult, ToolUseID: v.ToolUseID, Content: &content, IsError: v.IsError})
	default:
		return nil, fmt.Errorf("unsupported content block %T", b)
	}
}

// UnmarshalBlock decodes one content block, rejecting unknown types.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case BlockText:
		return TextBlock{Text: w.Text}, nil
	case BlockToolUse:
		return ToolUseBlock{ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case BlockToolResult:
		var content string
		if w.Content != nil {
			content = *w.Content
		}
		return ToolResultBlock{ToolUseID: w.ToolUseID, Content: content, IsError: w.IsError}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", w.Type)
	}
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(m.Content))
	for _, b := range m.Content {
		raw, err := MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		parts = append(parts, raw)
	}
	content, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

// UnmarshalJSON implements json.Unmarshaler. A plain string content is
// accepted as a single text block.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("unknown message role %q", w.Role)
	}
	m.Role = w.Role
	m.Content = nil

	trimmed := bytes.TrimSpace(w.Content)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		m.Content = []ContentBlock{TextBlock{Text: text}}
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return err
	}
	m.Content = make([]ContentBlock, 0, len(parts))
	for i, p := range parts {
		b, err := UnmarshalBlock(p)
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		m.Content = append(m.Content, b)
	}
	return nil
}
