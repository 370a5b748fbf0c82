// Copyright 2026 Roundtable Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 gemini 实现原生调用约定：直接对接 Gemini REST API
（generativelanguage.googleapis.com），不经过 openaicompat 兼容层，
因此请求体永远不是 {model, messages} 形状。

# 核心结构体

  - Provider — 持有 http.Client 与 Config；使用 x-goog-api-key 请求头认证
  - geminiRequest / geminiResponse — 原生请求/响应结构

# 构造函数

  - New(cfg, client, logger) — 创建实例，默认模型 gemini-2.0-flash

# 支持能力

  - generateContent（/v1beta/models/{model}:generateContent）
  - systemInstruction + generationConfig.temperature
  - thinkingConfig：仅当 ChatRequest.Thinking 为真且 [SupportsThinking] 判定模型支持时发送
*/
package gemini
