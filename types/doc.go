// Copyright (c) Roundtable Authors.
// Licensed under the MIT License.

/*
Package types 提供 Roundtable 全局共享的数据模型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的类型契约，避免循环依赖。

# 核心类型

  - Turn            — 对话中的一条发言（用户 / 角色 / 系统通知 / 摘要）
  - Persona         — 角色身份、行为指令与 ProviderBinding
  - ChatSession     — 群聊成员名单、MemberSettings、OrderingPolicy、固定顺序、摘要角色
  - ProviderConfig  — 单个后端的凭证、端点与模型
  - ProviderConfigs — 每次运行显式传入的只读配置表，Resolve 支持全局默认回退
  - Error / ErrorCode — 结构化错误，含 CONFIGURATION / NETWORK / PROVIDER 三类分发错误
*/
package types
