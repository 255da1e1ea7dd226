package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// StreamUpdateType discriminates StreamUpdate.
type StreamUpdateType string

const (
	// StreamUpdateSnapshot carries the accumulated text of the open text block.
	StreamUpdateSnapshot StreamUpdateType = "snapshot"
	// StreamUpdateMessage carries a complete assistant message.
	StreamUpdateMessage StreamUpdateType = "message"
	// StreamUpdateError is terminal: the turn failed.
	StreamUpdateError StreamUpdateType = "error"
	// StreamUpdateDone is terminal: the turn completed.
	StreamUpdateDone StreamUpdateType = "done"
)

// StreamUpdate is one element yielded by RunStream.
type StreamUpdate struct {
	Type    StreamUpdateType `json:"type"`
	Message *types.Message   `json:"message,omitempty"`
	Result  *ChatResult      `json:"result,omitempty"`
	Error   *types.Error     `json:"error,omitempty"`
}

// Terminal reports whether u ends the stream.
func (u StreamUpdate) Terminal() bool {
	return u.Type == StreamUpdateError || u.Type == StreamUpdateDone
}

// RunStream executes one streaming turn. Every text delta yields a snapshot
// of the text accumulated so far in that block; every model call ends with
// the complete message. Snapshots and complete messages are appended to the
// history, which is deduplicated before each resubmission. The stream ends
// with exactly one done or error update and the channel is always closed.
// If ctx is canceled while the consumer is not reading, the channel closes
// without a terminal update.
func (r *ConversationRunner) RunStream(ctx context.Context, req TurnRequest) <-chan StreamUpdate {
	out := make(chan StreamUpdate)

	go func() {
		defer close(out)

		emit := func(u StreamUpdate) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(err error) {
			r.logger.Error("streaming turn failed", zap.Error(err))
			te, ok := types.AsError(err)
			if !ok {
				te = types.NewError(types.ErrInternalError, err.Error()).WithCause(err)
			}
			emit(StreamUpdate{Type: StreamUpdateError, Error: te})
		}

		exec := r.tools(req.Retriever)
		history := startHistory(req.History, req.Prompt)
		var fnCalls []types.ContentBlock
		var usage types.TokenUsage

		for round := 0; ; round++ {
			snapshot := func(text string) bool {
				msg := types.NewAssistantMessage(text)
				history = append(history, msg)
				return emit(StreamUpdate{Type: StreamUpdateSnapshot, Message: &msg})
			}

			msg, stop, err := r.streamOnce(ctx, r.chatRequest(history, req.Config, exec), snapshot, &usage)
			if err != nil {
				fail(err)
				return
			}
			history = append(history, msg)
			if !emit(StreamUpdate{Type: StreamUpdateMessage, Message: &msg}) {
				return
			}

			uses := msg.ToolUses()
			if stop != llm.StopToolUse || len(uses) == 0 {
				text, _ := msg.FirstText()
				r.logger.Info("streaming turn completed",
					zap.Int("tool_rounds", round),
					zap.String("stop_reason", string(stop)))
				emit(StreamUpdate{Type: StreamUpdateDone, Result: &ChatResult{
					FinalText: text,
					History:   DedupHistory(history),
					FnCalls:   fnCalls,
					Usage:     usage,
				}})
				return
			}

			if round >= r.config.MaxToolRounds {
				fail(maxRoundsError(r.config.MaxToolRounds))
				return
			}

			fnCalls = append(fnCalls, msg.Content...)
			results := exec.Execute(ctx, msg.Content)
			history = append(history, types.NewToolResultMessage(results))
			history = DedupHistory(history)
		}
	}()

	return out
}

// blockAccumulator collects one content block across deltas.
type blockAccumulator struct {
	toolUse *types.ToolUseBlock
	text    strings.Builder
	input   strings.Builder
}

// streamOnce consumes one model stream and assembles the assistant message.
// snapshot is called after every text delta; returning false aborts.
func (r *ConversationRunner) streamOnce(ctx context.Context, req *llm.ChatRequest, snapshot func(string) bool, total *types.TokenUsage) (types.Message, llm.StopReason, error) {
	start := time.Now()
	var usage types.TokenUsage
	msg, stop, err := r.consume(ctx, req, snapshot, &usage)
	total.Add(usage)
	r.observer.ObserveLLMCall(r.provider.Name(), req.Model, time.Since(start), usage, err)
	if err != nil {
		return types.Message{}, "", llmCallError(err)
	}
	return msg, stop, nil
}

func (r *ConversationRunner) consume(ctx context.Context, req *llm.ChatRequest, snapshot func(string) bool, usage *types.TokenUsage) (types.Message, llm.StopReason, error) {
	events, err := r.provider.Stream(ctx, req)
	if err != nil {
		return types.Message{}, "", err
	}
	// 提前返回时排空通道，避免 Provider 的 goroutine 阻塞
	defer func() {
		go func() {
			for range events {
			}
		}()
	}()

	msg := types.Message{Role: types.RoleAssistant}
	open := make(map[int]*blockAccumulator)

	for {
		var (
			ev llm.StreamEvent
			ok bool
		)
		select {
		case <-ctx.Done():
			return types.Message{}, "", ctx.Err()
		case ev, ok = <-events:
		}
		if !ok {
			return types.Message{}, "", types.NewError(types.ErrUpstreamError, "stream ended before message_stop")
		}

		switch ev.Type {
		case llm.StreamEventMessageStart:
			if ev.Role != "" {
				msg.Role = ev.Role
			}
			if ev.Usage != nil {
				*usage = *ev.Usage
			}

		case llm.StreamEventContentBlockStart:
			acc := &blockAccumulator{}
			if ev.ToolUse != nil {
				tu := *ev.ToolUse
				acc.toolUse = &tu
			} else {
				acc.text.WriteString(ev.Text)
			}
			open[ev.Index] = acc

		case llm.StreamEventContentBlockDelta:
			acc, exists := open[ev.Index]
			if !exists {
				acc = &blockAccumulator{}
				open[ev.Index] = acc
			}
			if ev.InputFragment != "" {
				if acc.toolUse == nil {
					return types.Message{}, "", fmt.Errorf("input fragment for non tool-use block %d", ev.Index)
				}
				acc.input.WriteString(ev.InputFragment)
			}
			if ev.Text != "" {
				acc.text.WriteString(ev.Text)
				if !snapshot(acc.text.String()) {
					return types.Message{}, "", ctx.Err()
				}
			}

		case llm.StreamEventContentBlockStop:
			acc, exists := open[ev.Index]
			if !exists {
				continue
			}
			delete(open, ev.Index)
			block, err := acc.finish()
			if err != nil {
				return types.Message{}, "", err
			}
			if block != nil {
				msg.Content = append(msg.Content, block)
			}

		case llm.StreamEventMessageStop:
			if ev.Usage != nil {
				*usage = *ev.Usage
			}
			return msg, ev.StopReason, nil

		case llm.StreamEventError:
			if ev.Err == nil {
				return types.Message{}, "", types.NewError(types.ErrUpstreamError, "stream error")
			}
			return types.Message{}, "", ev.Err
		}
	}
}

// finish parses the accumulated tool input; empty text blocks are dropped.
func (a *blockAccumulator) finish() (types.ContentBlock, error) {
	if a.toolUse != nil {
		raw := strings.TrimSpace(a.input.String())
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("invalid tool input for %s (id=%s): %s", a.toolUse.Name, a.toolUse.ID, raw)
		}
		tu := *a.toolUse
		tu.Input = json.RawMessage(raw)
		return tu, nil
	}
	if a.text.Len() == 0 {
		return nil, nil
	}
	return types.TextBlock{Text: a.text.String()}, nil
}
