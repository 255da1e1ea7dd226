// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 提供 Anthropic Messages API 的 llm.Provider 实现，
是对话循环使用的主模型。

# 核心类型

  - Provider — 实现 Completion（同步）与 Stream（SSE 流式）

# 主要行为

  - 认证：x-api-key 请求头 + anthropic-version 版本头
  - system 角色消息合并进请求的 system 字段
  - 流式事件逐一映射为 llm.StreamEvent；message_delta 中的 stop_reason
    随 message_stop 一起下发
  - HTTP 错误通过 providers.MapHTTPError 映射为 types.Error
*/
package anthropic
