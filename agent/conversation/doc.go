// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供多角色群聊的编排核心：发言队列构建、顺序执行与会话工厂。

# 概述

一条用户消息到来时，conversation 决定谁发言、以什么顺序、发言几次，
然后严格串行地驱动生成循环：每位发言者都能看到本轮之前追加的所有发言。
任一次分发失败即中止本轮（all-or-nothing），追加一条系统通知后停止。

# 核心接口

  - Dispatcher：一次生成调用（由 agent/dispatch 实现）
  - Observer：执行事件订阅（run_started / turn_starting / turn_appended /
    run_completed / run_aborted）
  - SessionLoader / PersonaCatalog：会话设置、历史与角色目录的只读来源
  - RandSource：洗牌策略的可注入随机源

# 主要能力

  - BuildQueue：Fixed / Random / AutoDiscussion 三种排序策略，纯函数
  - Executor.Run：状态机 Idle → Running → Completed | Aborted
  - Executor.Summarize：摘要变体，绕过队列构建，只调用指定的摘要角色
  - Transcript：只追加的对话上下文，区分基线与本轮后缀
  - Sessions.StartSession：加载持久化历史并构造全新上下文的会话工厂，
    同一群聊同一时刻只允许一次运行

本包只发出数据，从不写存储；持久化由调用方（如 persistence.Recorder）完成。
*/
package conversation
