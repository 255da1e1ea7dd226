package tokenizer

import (
	"strings"
	"testing"

	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupEncoding(t *testing.T) {
	tests := []struct {
		model    string
		encoding string
		max      int
	}{
		{"gpt-4o-mini", "o200k_base", 128000},
		{"gpt-4o-mini-2024-07-18", "o200k_base", 128000},
		{"gpt-4-0613", "cl100k_base", 8192},
		{"claude-3-5-sonnet-20240620", "cl100k_base", 200000},
		{"unknown-model", "cl100k_base", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			info := lookupEncoding(tt.model)
			assert.Equal(t, tt.encoding, info.encoding)
			assert.Equal(t, tt.max, info.maxTokens)
		})
	}
}

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("ab")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.CountTokens(strings.Repeat("a", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = e.CountTokens("红烧肉红烧肉")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)

	out, err := e.Truncate(strings.Repeat("a", 100), 5)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 20), out)

	out, err = e.Truncate("short", 100)
	require.NoError(t, err)
	assert.Equal(t, "short", out)

	out, err = e.Truncate("anything", 0)
	require.NoError(t, err)
	assert.Equal(t, "anything", out)

	// 截断落在 rune 边界上
	out, err = e.Truncate("红烧肉红烧肉", 2)
	require.NoError(t, err)
	assert.Equal(t, "红烧肉", out)
}

func TestEstimator_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)
	msgs := []types.Message{
		types.NewUserMessage(strings.Repeat("a", 40)),
		{Role: types.RoleUser, Content: []types.ContentBlock{
			types.ToolResultBlock{ToolUseID: "t1", Content: strings.Repeat("b", 8)},
		}},
	}
	n, err := e.CountMessages(msgs)
	require.NoError(t, err)
	assert.Equal(t, (10+4)+(2+4)+3, n)
}

func TestCounter(t *testing.T) {
	var counter types.TokenCounter = Counter{Tokenizer: NewEstimatorTokenizer("test", 0)}
	assert.Equal(t, 10, counter.CountTokens(strings.Repeat("a", 40)))
	assert.Equal(t, 0, Counter{}.CountTokens("anything"))
}

func TestForModel_Consistent(t *testing.T) {
	tok := ForModel("gpt-4o-mini", nil)
	assert.Equal(t, 128000, tok.MaxTokens())

	// tiktoken 可能在离线环境下不可用，此时落到估算器；两者都必须满足截断契约
	text := strings.Repeat("tomato basil soup ", 200)
	out, err := tok.Truncate(text, 16)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, out))
	assert.Less(t, len(out), len(text))

	n, err := tok.CountTokens(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 17)
}
