// Copyright (c) Roundtable Authors.
// Licensed under the MIT License.

/*
Package main 提供 Roundtable 服务端程序入口。

# 概述

cmd/roundtable 把会话存储、LLM 调度器、编排执行器和 HTTP API 组装成
一个可执行服务，并提供数据库迁移、健康检查和版本查询子命令。

# 核心类型

  - Server          — 主服务器，管理 API 与 Metrics 双端口、后端连接及优雅关闭
  - Middleware      — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusRecorder  — 包装 http.ResponseWriter，捕获状态码并支持 websocket Hijack

# 主要能力

  - 子命令：serve、config（校验并打印生效配置）、migrate、health、version；
    各子命令返回退出码，便于测试
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    MetricsMiddleware、CORS、RateLimiter（按 API key，否则按 IP）、APIKeyAuth
  - Persona 热更新：指定 --config 时监听配置文件并替换 persona 目录
  - 观察者：持久化 Recorder、Prometheus Collector、websocket EventHub、预览缓存
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
