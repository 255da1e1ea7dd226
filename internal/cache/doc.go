// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 cache 提供基于 Redis 的嵌入向量缓存。

# 核心类型

  - Manager：持有 go-redis 客户端，GetVectors 以一次 MGET 批量读取、
    SetVectors 以一次 pipeline 批量写入，所有键自动加上 KeyPrefix。
  - Config：地址、密码、连接池、默认 TTL 与健康检查间隔；Enabled 为 false 时
    调用方不创建 Manager。

# 存储格式

向量按小端 float64 序列存储。长度不是 8 的倍数的值视为损坏，按未命中处理。

# 错误语义

  - 未命中不是错误：GetVectors 在对应位置返回 nil。
  - ErrClosed：Close 之后的任何操作。
*/
package cache
