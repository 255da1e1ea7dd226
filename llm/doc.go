// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package llm 定义与聊天模型交互所需的最小抽象：Provider（同步与流式）、
TextGenerator（辅助任务的纯文本生成）、流式事件 StreamEvent 以及内置提示词。

# 子包

  - providers/anthropic — Messages API 实现，SSE 解析为 StreamEvent
  - providers/openai — OpenAI / Azure OpenAI chat completions 文本生成
  - providers/gemini — 基于 google.golang.org/genai 的文本生成
  - embedding — 查询与文档向量化，可选 Redis 缓存
  - rerank — 交叉编码器打分（TEI、Cohere）
  - selfquery — 把自然语言查询转换为元数据过滤条件
  - tools — 工具注册、并发执行与对话循环
  - tokenizer — tiktoken 计数与截断
  - retry — 指数退避重试
*/
package llm
