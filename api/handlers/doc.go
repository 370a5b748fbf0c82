// Copyright (c) Roundtable Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Roundtable HTTP API 的请求处理器实现。

# 概述

handlers 包实现会话设置、消息运行、摘要、预览、persona 目录、
websocket 事件流以及健康检查的请求处理逻辑。
所有 Handler 均遵循标准 net/http 接口，路由使用 ServeMux 的方法 + 路径模式。

# 核心类型

  - SessionHandler   — 会话设置 CRUD、历史、消息运行、摘要运行与预览
  - PersonaHandler   — 只读 persona 目录
  - EventHub         — conversation.Observer，把运行事件推送给 websocket 订阅者
  - HealthHandler    — 存活与就绪探针（/healthz, /readyz, /version），可选依赖失败只降级
  - Response         — 统一 JSON 信封（success + data + error + timestamp + request_id）

# 错误映射

运行中止不是 HTTP 错误：消息与摘要接口返回 200，state 为 aborted，
error 字段区分 CONFIGURATION_ERROR、NETWORK_ERROR 与 PROVIDER_ERROR。
同一会话已有运行时返回 409 SESSION_BUSY。
非 *types.Error 的错误一律写成 500 INTERNAL_ERROR，原因只进日志。
*/
package handlers
