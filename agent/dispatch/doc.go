// Copyright (c) Roundtable Authors.
// Licensed under the MIT License.

/*
Package dispatch 实现响应分发器：把一个 (persona, 对话上下文) 转换为恰好一次后端调用，
并把结果归一化为一条 Turn。

# 调用约定

  - 原生约定（gemini）：整段上下文渲染为自由文本，附带 persona 专属的 system
    指令、温度，以及模型支持时开启的扩展推理开关。
  - 通用约定（其余服务商）：上下文映射为 role 标注的消息列表，用户发言为 user，
    persona 发言为 assistant，每条都带说话人名字前缀；触发文本作为最后一条 user 消息。

# 错误归类

Provider 返回的 llm.Error 被归类为 CONFIGURATION_ERROR、NETWORK_ERROR 或
PROVIDER_ERROR 三类 types.Error。空响应不是错误，会被替换为占位文本。
*/
package dispatch
