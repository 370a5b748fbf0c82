// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求/响应模型与错误码。

# 概述

不同服务商在接口、鉴权与错误语义上各不相同。本包对上层暴露一致的
[ChatRequest] / [ChatResponse]，两种调用约定的差异留在 providers 子包内：

  - providers/openaicompat：通用 chat-completions 约定（{model, messages, temperature}）
  - providers/gemini：原生 generateContent 约定（systemInstruction + generationConfig）

# 错误

Provider 返回 [*Error]，其中 [ErrTransport] 表示网络层失败，其余错误码表示
上游返回了非成功状态或无法解析的响应。
*/
package llm
