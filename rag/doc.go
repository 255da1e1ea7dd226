// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 实现菜谱检索管线：粗召回、基于 LLM 元数据过滤的自过滤阶段、
交叉编码器重排序，以及把它们组合成按请求构建的 Retriever。

# 核心接口/类型

  - VectorStore — 向量库检索接口（Search / Count），Qdrant 与内存实现
  - Embedder — 文本向量化接口
  - QueryConstructor — 由辅助 LLM 把查询转换为 StructuredQuery
  - CrossEncoderScorer — 交叉编码器打分接口
  - RetrieverContext — 启动时构建一次、显式注入到各请求的依赖集合
  - StageObserver — 阶段耗时与结果数的观测钩子

# 组合方式

BuildRetriever 根据 RetrievalConfig.Retriever 选择管线：

  - coarse — 仅粗召回（similarity 或 mmr）
  - reranker — 粗召回 + 重排序
  - self_query_chain — 粗召回 + 自过滤 + 重排序

非法取值在任何网络调用之前返回 CONFIG_INVALID。

# 自过滤

SelfFilter 在只包含粗召回结果的临时内存索引上运行，最多两次尝试：
先带元数据 schema 构造过滤条件，失败后以空 schema 做普通检索，
再次失败才返回 SELF_FILTER_ERROR。结果总是输入的子集。

# 格式化

FormatDocs 把每个查询的结果渲染成交给模型的文本，剔除 name、
description、recipe_category 以及 "No Data Available" 的元数据。
*/
package rag
