// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 embedding 提供检索流水线所需的文本嵌入。所有实现满足 rag.Embedder，
查询与文档分别通过 EmbedQuery / EmbedDocuments 嵌入。

# 核心类型

  - Provider：统一接口（EmbedQuery、EmbedDocuments、Name、Model）
  - BaseProvider：HTTP 公共基类，封装请求、错误映射（providers.MapHTTPError）、
    llm/retry 重试与按 MaxBatch 分批
  - OpenAIProvider：OpenAI 兼容 /v1/embeddings；text-embeddings-inference
    暴露相同端点，默认配置指向本地句向量模型
  - GeminiProvider：基于 genai SDK 的 Models.EmbedContent，
    查询与文档分别使用 RETRIEVAL_QUERY / RETRIEVAL_DOCUMENT 任务类型
  - CachedProvider：Redis 缓存层，只把未命中的文档发给底层提供者

# 使用方式

	p, err := embedding.New(ctx, cfg.Embedding, cacheManager, collector)
	vec, err := p.EmbedQuery(ctx, "quick vegan dinner")
*/
package embedding
