// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 提供基于 Chat Completions API 的 llm.TextGenerator，
用作自查询（self-query）过滤器构造的辅助模型。

# 核心类型

  - Generator — 同一实现服务两种后端：
    NewGenerator（api.openai.com，Bearer 认证，可选 Organization 头）与
    NewAzureGenerator（/openai/deployments/{deployment}，api-key 认证）

# 主要行为

  - 温度固定为 0，过滤器构造需要确定性输出
  - 429 / 5xx / 网络错误通过 llm/retry 指数退避重试
*/
package openai
