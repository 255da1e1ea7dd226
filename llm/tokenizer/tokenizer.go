package tokenizer

import (
	"sync"

	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// Tokenizer 是统一的 token 计数与截断接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []types.Message) (int, error)

	// Truncate 返回不超过 maxTokens 的文本前缀. maxTokens <= 0 表示不截断.
	Truncate(text string, maxTokens int) (string, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// ForModel returns a tiktoken tokenizer for model that switches to the
// character estimator when the encoding cannot be loaded (tiktoken fetches
// its BPE ranks on first use).
func ForModel(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resilient{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(model, 0),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

type resilient struct {
	primary  *TiktokenTokenizer
	fallback *EstimatorTokenizer
	logger   *zap.Logger
	warnOnce sync.Once
}

func (r *resilient) active() Tokenizer {
	if err := r.primary.init(); err != nil {
		r.warnOnce.Do(func() {
			r.logger.Warn("tiktoken unavailable, using estimator",
				zap.String("encoding", r.primary.encoding),
				zap.Error(err))
		})
		return r.fallback
	}
	return r.primary
}

func (r *resilient) CountTokens(text string) (int, error) { return r.active().CountTokens(text) }

func (r *resilient) CountMessages(messages []types.Message) (int, error) {
	return r.active().CountMessages(messages)
}

func (r *resilient) Truncate(text string, maxTokens int) (string, error) {
	return r.active().Truncate(text, maxTokens)
}

func (r *resilient) MaxTokens() int { return r.primary.MaxTokens() }

func (r *resilient) Name() string { return r.active().Name() }

// Counter adapts a Tokenizer to types.TokenCounter. Counting errors read as zero.
type Counter struct {
	Tokenizer Tokenizer
}

// CountTokens implements types.TokenCounter.
func (c Counter) CountTokens(text string) int {
	if c.Tokenizer == nil {
		return 0
	}
	n, err := c.Tokenizer.CountTokens(text)
	if err != nil {
		return 0
	}
	return n
}

// messageText flattens the parts of a message that reach the model as text.
func messageText(msg types.Message) string {
	var out []byte
	for _, block := range msg.Content {
		switch b := block.(type) {
		case types.TextBlock:
			out = append(out, b.Text...)
		case types.ToolUseBlock:
			out = append(out, b.Name...)
			out = append(out, b.Input...)
		case types.ToolResultBlock:
			out = append(out, b.Content...)
		}
	}
	return string(out)
}
