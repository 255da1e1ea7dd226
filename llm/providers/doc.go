// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 是各模型服务商实现的公共基础层：共享配置、HTTP 错误映射
与错误消息解析。具体实现位于子包 anthropic、openai、gemini。

# 核心类型

  - BaseProviderConfig — 所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - AnthropicConfig / OpenAIConfig / AzureOpenAIConfig / GeminiConfig — 各服务商配置

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为 types.Error（含 Retryable 标记）
  - TransportError — 网络层失败统一为可重试的 UPSTREAM_ERROR
  - ReadErrorMessage — 解析上游错误响应体
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
