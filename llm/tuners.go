package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// TunerRequest asks for refinements of the next recipe request.
type TunerRequest struct {
	History        []types.Message
	PreviousTuners []string
	Model          string
	Temperature    float64
	MaxTokens      int
}

// TunerGenerator asks the chat model for short prompt refinements.
type TunerGenerator struct {
	provider Provider
	logger   *zap.Logger
}

// NewTunerGenerator 创建提示词调节器生成器
func NewTunerGenerator(provider Provider, logger *zap.Logger) *TunerGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TunerGenerator{
		provider: provider,
		logger:   logger.With(zap.String("component", "tuners")),
	}
}

// Generate returns at most TunerCount trimmed, deduplicated tuners. The call
// carries no tools, so the reply is read from its first text block.
func (g *TunerGenerator) Generate(ctx context.Context, req TunerRequest) ([]string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	resp, err := g.provider.Completion(ctx, &ChatRequest{
		Model:       req.Model,
		Messages:    []types.Message{types.NewUserMessage(TunersPrompt(RenderHistory(req.History), req.PreviousTuners))},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		if types.HasCode(err, types.ErrLLMCall) {
			return nil, err
		}
		return nil, types.NewError(types.ErrLLMCall, "tuner generation failed").
			WithCause(err).
			WithRetryable(types.IsRetryable(err))
	}

	text, _ := resp.Message.FirstText()
	tuners := ParseTuners(text)
	g.logger.Debug("tuners generated", zap.Int("count", len(tuners)))
	return tuners, nil
}

// RenderHistory flattens a conversation into "role: text" lines. Tool use and
// tool result blocks carry no user-facing text and are skipped.
func RenderHistory(history []types.Message) string {
	var b strings.Builder
	for _, m := range history {
		for _, block := range m.Content {
			tb, ok := block.(types.TextBlock)
			if !ok || strings.TrimSpace(tb.Text) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}
