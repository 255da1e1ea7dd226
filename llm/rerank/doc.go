// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 rerank 为 rag.Reranker 提供远程交叉编码器打分器。
打分器只负责给 (query, document) 对打分，排序、截断与 topN 由 rag.Reranker 完成。

# 核心类型

  - TEIScorer：HuggingFace text-embeddings-inference 的 /rerank 端点，
    默认模型 cross-encoder/ms-marco-MiniLM-L-6-v2，返回原始分数
  - CohereScorer：Cohere /v2/rerank，返回 relevance_score
  - Config / New：按 provider 选择实现

# 主要行为

  - 服务端按分数排序返回结果，打分器按 index 写回输入顺序
  - 429 / 5xx 通过 llm/retry 重试，HTTP 错误映射为 types.Error
*/
package rerank
