// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 RecipeFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、llm、api 等上层模块
提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ContentBlock — 对话消息与内容块（text、tool_use、tool_result）
  - ToolSchema             — 工具定义（name + description + input_schema）
  - JSONSchema             — 工具输入 Schema 构建器（NewObjectSchema 等）
  - RetrievalConfig        — 每轮对话的检索与生成参数，含 Validate
  - TokenUsage             — Token 用量统计
  - Error / ErrorCode      — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - 错误工具链：AsError / HasCode / GetErrorCode / IsRetryable / HTTPStatusFor
  - 配置解析：ParseRetrieverKind 与 DefaultRetrievalConfig
*/
package types
