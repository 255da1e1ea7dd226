package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
)

// scriptedProvider replays queued replies and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	streams   [][]llm.StreamEvent
	streamErr error
	err       error
	requests  []llm.ChatRequest
}

func (p *scriptedProvider) record(req *llm.ChatRequest) {
	cp := *req
	cp.Messages = append([]types.Message(nil), req.Messages...)
	p.requests = append(p.requests, cp)
}

func (p *scriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("no more responses")
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) Stream(_ context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(req)
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	if len(p.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	events := p.streams[0]
	if len(p.streams) > 1 {
		p.streams = p.streams[1:]
	}
	ch := make(chan llm.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

// fakeRetriever answers from a fixed table and counts calls.
type fakeRetriever struct {
	docs  map[string][]rag.Document
	fail  map[string]error
	calls atomic.Int64
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string) ([]rag.Document, error) {
	r.calls.Add(1)
	if err := r.fail[query]; err != nil {
		return nil, err
	}
	return r.docs[query], nil
}

func toolUse(id, name, input string) types.ToolUseBlock {
	return types.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)}
}

func textReply(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: types.NewAssistantMessage(text), StopReason: llm.StopEndTurn}
}

func toolReply(blocks ...types.ContentBlock) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:    types.Message{Role: types.RoleAssistant, Content: blocks},
		StopReason: llm.StopToolUse,
	}
}

// textStream scripts a streamed reply made of text deltas in one block.
func textStream(deltas ...string) []llm.StreamEvent {
	events := []llm.StreamEvent{
		{Type: llm.StreamEventMessageStart, Role: types.RoleAssistant},
		{Type: llm.StreamEventContentBlockStart, Index: 0},
	}
	for _, d := range deltas {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventContentBlockDelta, Index: 0, Text: d})
	}
	return append(events,
		llm.StreamEvent{Type: llm.StreamEventContentBlockStop, Index: 0},
		llm.StreamEvent{Type: llm.StreamEventMessageStop, StopReason: llm.StopEndTurn},
	)
}

// toolStream scripts a streamed tool_use reply whose input arrives in fragments.
func toolStream(id, name string, fragments ...string) []llm.StreamEvent {
	events := []llm.StreamEvent{
		{Type: llm.StreamEventMessageStart, Role: types.RoleAssistant},
		{Type: llm.StreamEventContentBlockStart, Index: 0, ToolUse: &types.ToolUseBlock{ID: id, Name: name}},
	}
	for _, f := range fragments {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventContentBlockDelta, Index: 0, InputFragment: f})
	}
	return append(events,
		llm.StreamEvent{Type: llm.StreamEventContentBlockStop, Index: 0},
		llm.StreamEvent{Type: llm.StreamEventMessageStop, StopReason: llm.StopToolUse},
	)
}

func staticExecutor(exec *Executor) ExecutorFactory {
	return func(rag.Retriever) *Executor { return exec }
}

func echoRegistry() *Registry {
	reg := NewRegistry(nil)
	_ = reg.Register("echo", func(_ context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	}, ToolMetadata{})
	_ = reg.Register("fail", func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("boom")
	}, ToolMetadata{})
	return reg
}
