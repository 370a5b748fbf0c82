// Copyright 2026 Roundtable Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供两种调用约定共享的适配能力，是 openaicompat 与 gemini
子包的公共基础层。各约定的请求/响应结构体留在各自子包内。

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - TransportError / InvalidResponseError — 网络层失败与响应解析失败
  - ReadErrorMessage — 从错误响应体中提取可读信息（兼容 OpenAI 与 Gemini 格式）
  - CloseBody — 读空并关闭响应体，保证连接复用
  - NewHTTPClient — TLS 加固的共享 HTTP 客户端
*/
package providers
