// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 selfquery 实现自过滤阶段使用的过滤器构造器（rag.QueryConstructor）：
由辅助模型把用户查询翻译成 {query, filter, limit} 形式的结构化请求。

# 核心类型

  - Constructor — 组装提示词，调用 llm.TextGenerator，并用
    rag.ParseStructuredQuery 解析输出
  - Factory — 按 OpenAI / Azure / Gemini 后端与模型名构造并缓存 Constructor，
    其 Build 方法满足 rag.ConstructorFactory

模型调用失败返回 LLM_CALL_ERROR；输出无法解析时原样返回解析错误，
由 rag.SelfFilter 负责降级重试。
*/
package selfquery
