package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
)

// ToolFunc runs one tool call and returns the text handed back to the model.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema  types.ToolSchema // Tool JSON Schema
	Timeout time.Duration    // Execution timeout (default 60s)
}

const defaultToolTimeout = 60 * time.Second

type registeredTool struct {
	fn       ToolFunc
	metadata ToolMetadata
}

// ====== Registry ======

// Registry maps tool names to handlers. Schemas are advertised in
// registration order so every model call sees the same tool list.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]registeredTool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. The schema name defaults to name and must match it.
func (r *Registry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	// 校验 Schema
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}

	// 设置默认超时
	if metadata.Timeout <= 0 {
		metadata.Timeout = defaultToolTimeout
	}

	r.tools[name] = registeredTool{fn: fn, metadata: metadata}
	r.order = append(r.order, name)

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

// Get returns the handler and metadata registered under name.
func (r *Registry) Get(name string) (ToolFunc, ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, false
	}
	return t.fn, t.metadata, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Schemas returns exactly the registered tool schemas, in registration order.
func (r *Registry) Schemas() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].metadata.Schema)
	}
	return schemas
}
