// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 RecipeFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现菜谱对话服务的全部 HTTP 端点：对话（同步、SSE、WebSocket）、
文档检索、提示词调节、审计查询与健康检查，以及统一的错误与解码逻辑。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - ChatHandler    — 对话处理器：HandleChat、HandleStream（SSE）、HandleWebSocket；
                     Shutdown 在服务关闭时以 going away 断开 WebSocket
  - DocsHandler    — 直接执行检索，返回每个查询的文档
  - TunersHandler  — 生成下一轮提问的改写建议
  - TurnsHandler   — 查询调用方最近的对话审计记录
  - HealthHandler  — /health、/ready、/version
  - ErrorResponse  — 统一错误结构（success + error + timestamp + request_id）

# 主要能力

  - 请求解码：DecodeJSONBody（大小限制 + 严格模式 + validator 标签校验）
  - 配置覆盖：ResolveConfig 把请求 config 覆盖到服务端默认检索配置上
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 每轮对话结束后记录指标、遥测与审计，审计写入不受客户端断开影响
*/
package handlers
