// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package tools 提供工具注册、并发执行以及模型与工具之间的对话循环。

# 工具

  - query_food_recipe_vector_db — 对本请求组装的检索器并发执行每个查询，结果经 rag.FormatDocs 格式化
  - google_web_search — Google 自定义搜索，逐页并发抓取正文，单页超时降级为空正文

两个工具的参数都是 {"queries": [...]}。Toolbox 为每个请求构建 Executor，
缺参、未知工具或处理失败都以 is_error 结果返回，不会中断同一批次的其他调用。

# 对话循环

ConversationRunner.Run 为非流式循环：模型以 tool_use 停止时执行全部工具调用，
结果合并为一条 user 消息后重新提交，直到模型给出最终文本。
ConversationRunner.RunStream 为流式版本，每个文本增量产出一次累计快照，
以 done 或 error 更新结束并总会关闭通道。两者都受 MaxToolRounds 限制。
*/
package tools
