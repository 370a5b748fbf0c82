// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，并用它维护会话列表的
"最新消息预览"。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/Set/Delete/Ping
    以及 GetJSON/SetJSON 便捷序列化方法。可自建连接，也可借用已有客户端。
  - PreviewRecorder：conversation.Observer 实现，在每个 TurnAppended
    事件后把最新发言写入 {KeyPrefix}chat:preview:{chatID}，并带过期时间。
  - Preview：预览内容（会话、发言者、文本、时间）。

# 错误语义

ErrCacheMiss 表示键不存在，可用 IsCacheMiss 判断；ErrClosed 表示管理器已关闭。
*/
package cache
