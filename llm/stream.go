package llm

import "github.com/BaSui01/recipeflow/types"

// StreamEventType discriminates StreamEvent.
type StreamEventType string

const (
	StreamEventMessageStart      StreamEventType = "message_start"
	StreamEventContentBlockStart StreamEventType = "content_block_start"
	StreamEventContentBlockDelta StreamEventType = "content_block_delta"
	StreamEventContentBlockStop  StreamEventType = "content_block_stop"
	StreamEventMessageStop       StreamEventType = "message_stop"
	StreamEventError             StreamEventType = "error"
)

// StreamEvent is one element of a streamed reply. Which fields are set
// depends on Type:
//
//	message_start        Role
//	content_block_start  Index, ToolUse (nil for text blocks)
//	content_block_delta  Index, Text or InputFragment
//	content_block_stop   Index
//	message_stop         StopReason, Usage
//	error                Err
type StreamEvent struct {
	Type          StreamEventType
	Index         int
	Role          types.Role
	ToolUse       *types.ToolUseBlock
	Text          string
	InputFragment string
	StopReason    StopReason
	Usage         *types.TokenUsage
	Err           error
}
