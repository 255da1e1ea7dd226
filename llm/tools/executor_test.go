package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(nil)
	noop := func(context.Context, json.RawMessage) (string, error) { return "", nil }

	require.NoError(t, reg.Register("b_tool", noop, ToolMetadata{}))
	require.NoError(t, reg.Register("a_tool", noop, ToolMetadata{Schema: types.ToolSchema{Name: "a_tool"}}))

	assert.Error(t, reg.Register("a_tool", noop, ToolMetadata{}), "duplicate name")
	assert.Error(t, reg.Register("c_tool", noop, ToolMetadata{Schema: types.ToolSchema{Name: "other"}}), "name mismatch")
	assert.Error(t, reg.Register("d_tool", nil, ToolMetadata{}), "nil handler")

	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "b_tool", schemas[0].Name)
	assert.Equal(t, "a_tool", schemas[1].Name)

	_, meta, ok := reg.Get("b_tool")
	require.True(t, ok)
	assert.Equal(t, defaultToolTimeout, meta.Timeout)
	assert.False(t, reg.Has("c_tool"))
}

func TestToolbox_AdvertisesBothTools(t *testing.T) {
	tb := &Toolbox{}
	exec := tb.Executor(&fakeRetriever{})

	schemas := exec.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, RecipeDBToolName, schemas[0].Name)
	assert.Equal(t, WebSearchToolName, schemas[1].Name)
	for _, s := range schemas {
		assert.True(t, json.Valid(s.Parameters), s.Name)
		assert.Contains(t, string(s.Parameters), `"queries"`)
	}

	// 未配置搜索后端时调用仍有结果，只是标记为错误
	results := exec.Execute(context.Background(), []types.ContentBlock{
		toolUse("t1", WebSearchToolName, `{"queries":["pho"]}`),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
}

func TestExecutor_MissingQueries(t *testing.T) {
	retriever := &fakeRetriever{docs: map[string][]rag.Document{
		"soup": {{ID: "1", Content: "Tomato soup", Metadata: map[string]any{"keywords": "soup"}}},
	}}
	exec := (&Toolbox{}).Executor(retriever)

	results := exec.Execute(context.Background(), []types.ContentBlock{
		toolUse("t1", RecipeDBToolName, `{}`),
		toolUse("t2", RecipeDBToolName, `{"queries":["soup"]}`),
	})

	require.Len(t, results, 2)
	assert.Equal(t, types.ToolResultBlock{ToolUseID: "t1", Content: "", IsError: true}, results[0])
	assert.Equal(t, "t2", results[1].ToolUseID)
	assert.False(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "Tomato soup")
	assert.Equal(t, int64(1), retriever.calls.Load())
}

func TestExecutor_UnknownToolAndFailures(t *testing.T) {
	exec := NewExecutor(echoRegistry(), nil)

	results := exec.Execute(context.Background(), []types.ContentBlock{
		types.TextBlock{Text: "let me look that up"},
		toolUse("a", "nope", `{}`),
		toolUse("b", "fail", `{}`),
		toolUse("c", "echo", `{"x":1}`),
	})

	require.Len(t, results, 3)
	assert.Equal(t, types.ErrorResult("a"), results[0])
	assert.Equal(t, types.ErrorResult("b"), results[1])
	assert.Equal(t, types.ToolResultBlock{ToolUseID: "c", Content: `{"x":1}`}, results[2])
}

func TestExecutor_NoToolUses(t *testing.T) {
	exec := NewExecutor(echoRegistry(), nil)
	results := exec.Execute(context.Background(), []types.ContentBlock{types.TextBlock{Text: "hi"}})
	assert.Empty(t, results)
}

func TestExecutor_RunsBatchConcurrently(t *testing.T) {
	reg := NewRegistry(nil)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	block := func(ctx context.Context, _ json.RawMessage) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	require.NoError(t, reg.Register("block", block, ToolMetadata{Timeout: 5 * time.Second}))
	exec := NewExecutor(reg, nil, WithMaxConcurrency(2))

	done := make(chan []types.ToolResultBlock, 1)
	go func() {
		done <- exec.Execute(context.Background(), []types.ContentBlock{
			toolUse("1", "block", `{}`),
			toolUse("2", "block", `{}`),
		})
	}()

	// 两个调用必须同时在运行，串行执行会在这里超时
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("tool calls did not run concurrently")
		}
	}
	close(release)

	results := <-done
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.IsError)
		assert.Equal(t, "ok", r.Content)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))

	obs := &recordingObserver{}
	exec := NewExecutor(reg, nil, WithObserver(obs))

	result := exec.ExecuteOne(context.Background(), toolUse("s", "slow", `{}`))
	assert.Equal(t, types.ErrorResult("s"), result)
	assert.Equal(t, int64(1), obs.errors.Load())
}

type recordingObserver struct {
	calls  atomic.Int64
	errors atomic.Int64
}

func (o *recordingObserver) ObserveToolCall(_ string, _ time.Duration, err error) {
	o.calls.Add(1)
	if err != nil {
		o.errors.Add(1)
	}
}

// Every dispatched tool use gets exactly one result with its id, whatever
// mix of known, unknown, failing and malformed calls the batch holds.
func TestExecutor_ResultPairingProperty(t *testing.T) {
	exec := NewExecutor(echoRegistry(), nil, WithMaxConcurrency(3))

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		var blocks []types.ContentBlock
		var ids []string
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "interleave_text") {
				blocks = append(blocks, types.TextBlock{Text: "thinking"})
			}
			name := rapid.SampledFrom([]string{"echo", "fail", "missing"}).Draw(t, "name")
			id := fmt.Sprintf("toolu_%d", i)
			ids = append(ids, id)
			blocks = append(blocks, toolUse(id, name, `{"queries":["q"]}`))
		}

		results := exec.Execute(context.Background(), blocks)
		if len(results) != len(ids) {
			t.Fatalf("got %d results for %d tool uses", len(results), len(ids))
		}
		seen := make(map[string]int)
		for _, r := range results {
			seen[r.ToolUseID]++
		}
		for _, id := range ids {
			if seen[id] != 1 {
				t.Fatalf("tool use %s answered %d times", id, seen[id])
			}
		}
	})
}
