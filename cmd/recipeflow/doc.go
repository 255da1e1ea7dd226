// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 RecipeFlow 服务端程序入口。

# 概述

cmd/recipeflow 是菜谱对话服务的可执行入口，提供 HTTP API 服务、
审计库迁移、菜谱数据导入、健康检查和版本查询等子命令。程序从 YAML
配置文件与 RECIPEFLOW_* 环境变量（可由 .env 提供）加载配置，使用 zap
结构化日志，可选 lumberjack 滚动文件。

# 核心类型

  - Server      — 主服务器，组装检索管线、工具、对话循环与 handlers，
    管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate、ingest、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、Metrics、CORS、认证（JWT 或 API Key）、RateLimiter（按调用方）
  - Metrics：MetricsPort 为 0 时在 HTTP 端口暴露 /metrics
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 刷新遥测 → 关闭数据库与缓存
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
