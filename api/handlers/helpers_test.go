package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/recipeflow/internal/turnlog"
	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
)

// fakeRunner 返回预设的结果与流式更新
type fakeRunner struct {
	mu      sync.Mutex
	result  *tools.ChatResult
	err     error
	updates []tools.StreamUpdate
	block   bool // RunStream 发完 updates 后等待 ctx 取消
	got     []tools.TurnRequest
}

func (f *fakeRunner) Run(ctx context.Context, req tools.TurnRequest) (*tools.ChatResult, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) RunStream(ctx context.Context, req tools.TurnRequest) <-chan tools.StreamUpdate {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()

	out := make(chan tools.StreamUpdate)
	go func() {
		defer close(out)
		for _, u := range f.updates {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
		if f.block {
			<-ctx.Done()
		}
	}()
	return out
}

func (f *fakeRunner) requests() []tools.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tools.TurnRequest(nil), f.got...)
}

// memRecorder 把审计记录保存在内存
type memRecorder struct {
	mu    sync.Mutex
	turns []turnlog.Turn

	rows          []turnlog.ChatTurn
	recentErr     error
	lastPrincipal string
	lastLimit     int
}

func (m *memRecorder) Record(_ context.Context, t turnlog.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return nil
}

func (m *memRecorder) Recent(_ context.Context, principal string, limit int) ([]turnlog.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPrincipal, m.lastLimit = principal, limit
	return m.rows, m.recentErr
}

func (m *memRecorder) all() []turnlog.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]turnlog.Turn(nil), m.turns...)
}

type turnCount struct {
	mu    sync.Mutex
	modes []string
	errs  []error
}

func (c *turnCount) RecordTurn(mode string, _ types.RetrieverKind, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes = append(c.modes, mode)
	c.errs = append(c.errs, err)
}

// staticRetrievers 忽略配置，总是返回同一组文档
func staticRetrievers(docs ...rag.Document) RetrieverBuilder {
	return func(cfg types.RetrievalConfig) (rag.Retriever, error) {
		return rag.RetrieverFunc(func(ctx context.Context, query string) ([]rag.Document, error) {
			return docs, nil
		}), nil
	}
}

func sampleResult() *tools.ChatResult {
	use := types.ToolUseBlock{ID: "tu_1", Name: "query_food_recipe_vector_db", Input: []byte(`{"queries":["curry"]}`)}
	return &tools.ChatResult{
		FinalText: "Try a chickpea curry.",
		History: []types.Message{
			types.NewUserMessage("vegan curry?"),
			{Role: types.RoleAssistant, Content: []types.ContentBlock{types.TextBlock{Text: "Looking."}, use}},
			types.NewToolResultMessage([]types.ToolResultBlock{{ToolUseID: "tu_1", Content: "Query: curry"}}),
			types.NewAssistantMessage("Try a chickpea curry."),
		},
		FnCalls: []types.ContentBlock{types.TextBlock{Text: "Looking."}, use},
		Usage:   types.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}
