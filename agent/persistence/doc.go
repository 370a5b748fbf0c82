// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供聊天会话设置与发言历史的持久化存储抽象及多后端实现。

# 概述

编排核心只读取历史、从不写入。本包提供 ChatStore 接口，供会话层加载历史，
并通过 Recorder 观察者在每次运行结束时把新增发言整段追加到存储中。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - ChatStore: 会话设置的保存、读取、删除，以及发言的有序追加与读取。
    追加时为每条发言分配会话内连续递增的 Seq。

# 后端实现

  - Memory: 内存实现，适合开发与测试，重启后数据丢失。
  - File: 内存实现加原子写入的 JSON 快照，适合单节点部署。
  - Redis: 会话 JSON + 发言列表 + INCRBY 序号计数器，适合分布式部署。
  - SQL: gorm 模型 chat_sessions / chat_turns，支持 PostgreSQL、MySQL、SQLite。
  - Mongo: chat_sessions / chat_turns 集合，序号由 chat_counters 的 $inc 分配。

# 使用方式

通过工厂函数按配置创建存储实例：

	store, err := persistence.NewChatStore(ctx, cfg, persistence.Backends{DB: db, Redis: rdb})
	recorder := persistence.NewRecorder(store, logger)
	executor := conversation.NewExecutor(dispatcher, logger, conversation.WithObserver(recorder))
*/
package persistence
