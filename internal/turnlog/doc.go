// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package turnlog records one audit row per chat turn: the retrieval config,
prompt, final text, fn-call count, token usage, latency and error code.

GormRecorder writes the chat_turns table through gorm on any of the
supported dialects; the schema itself is owned by internal/migration.
NopRecorder is used when auditing is disabled.
*/
package turnlog
