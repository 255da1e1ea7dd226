// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理对话审计库（chat_turns 表）的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
文件名形如 000001_create_chat_turns.up.sql。三种方言的版本序列
保持一致。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、
    Version、Status、Info 与 Close。
  - Config：数据库类型、连接串、版本表名、锁超时与 zap 日志。
  - CLI：recipeflow migrate 子命令的终端输出层。

# 辅助函数

  - NewMigratorFromDatabaseConfig 从 config.DatabaseConfig 构建迁移器。
  - ParseDatabaseType 解析类型别名，BuildDatabaseURL 拼接连接串。
*/
package migration
