// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 gemini 基于 google.golang.org/genai SDK 提供 llm.TextGenerator，
作为自查询过滤器构造的可选后端。

# 核心类型

  - Generator — 调用 Models.GenerateContent，温度固定为 0
  - NewClient — 构造 genai 客户端（embedding 包复用）
  - MapError — 将 genai.APIError 映射为 types.Error
*/
package gemini
