package types

import "encoding/json"

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"input_schema"`
}

// ErrorResult builds the is_error result returned for a tool call that
// could not run.
func ErrorResult(toolUseID string) ToolResultBlock {
	return ToolResultBlock{ToolUseID: toolUseID, Content: "", IsError: true}
}
