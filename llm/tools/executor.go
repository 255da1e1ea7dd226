package tools

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/BaSui01/recipeflow/llm/tools")

// Observer receives one observation per executed tool call.
type Observer interface {
	ObserveToolCall(tool string, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveToolCall(string, time.Duration, error) {}

// DefaultMaxConcurrency bounds the tool calls of one batch running at once.
const DefaultMaxConcurrency = 8

// Executor runs a batch of tool calls against a Registry.
type Executor struct {
	registry       *Registry
	maxConcurrency int
	observer       Observer
	logger         *zap.Logger
}

// ExecutorOption 配置 Executor
type ExecutorOption func(*Executor)

// WithMaxConcurrency bounds how many calls of one batch run at once.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithObserver reports each call's duration and outcome.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExecutor 创建工具执行器。
func NewExecutor(registry *Registry, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:       registry,
		maxConcurrency: DefaultMaxConcurrency,
		observer:       nopObserver{},
		logger:         logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schemas returns the tool schemas advertised to the model.
func (e *Executor) Schemas() []types.ToolSchema {
	return e.registry.Schemas()
}

// Execute runs every tool-use block concurrently and waits for the whole
// batch. Other block kinds are ignored. The result slice has exactly one
// entry per tool use, in the order the tool uses appear. A call that cannot
// run (bad arguments, unknown tool, handler failure) yields an is_error
// result with empty content instead of failing the batch.
func (e *Executor) Execute(ctx context.Context, blocks []types.ContentBlock) []types.ToolResultBlock {
	var calls []types.ToolUseBlock
	for _, block := range blocks {
		if use, ok := block.(types.ToolUseBlock); ok {
			calls = append(calls, use)
		}
	}
	results := make([]types.ToolResultBlock, len(calls))
	if len(calls) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ExecuteOne runs a single tool call. It never returns an error; failures
// become is_error results.
func (e *Executor) ExecuteOne(ctx context.Context, call types.ToolUseBlock) types.ToolResultBlock {
	ctx, span := tracer.Start(ctx, "tool."+call.Name)
	span.SetAttributes(attribute.String("tool.use_id", call.ID))
	defer span.End()

	start := time.Now()
	content, err := e.run(ctx, call)
	duration := time.Since(start)
	e.observer.ObserveToolCall(call.Name, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
		e.logger.Error("tool call failed",
			zap.String("name", call.Name),
			zap.String("tool_use_id", call.ID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.ByteString("input", call.Input),
			zap.Error(err),
			zap.Duration("duration", duration))
		return types.ErrorResult(call.ID)
	}

	e.logger.Info("tool executed",
		zap.String("name", call.Name),
		zap.String("tool_use_id", call.ID),
		zap.Int("content_len", len(content)),
		zap.Duration("duration", duration))
	return types.ToolResultBlock{ToolUseID: call.ID, Content: content}
}

func (e *Executor) run(ctx context.Context, call types.ToolUseBlock) (string, error) {
	fn, meta, ok := e.registry.Get(call.Name)
	if !ok {
		return "", types.NewError(types.ErrUnknownTool, "unknown tool: "+call.Name)
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	content, err := fn(execCtx, call.Input)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return "", types.NewError(types.ErrInternalError, "tool "+call.Name+" timed out after "+meta.Timeout.String()).WithCause(err)
	}
	return content, err
}
