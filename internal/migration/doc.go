// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理聊天存储的数据库 Schema（chat_sessions 与 chat_turns），
基于 golang-migrate，支持 PostgreSQL 与 MySQL。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，表结构与 persistence.SQLStore
的 GORM 模型保持一致。SQLite 存储由 store.auto_migrate 建表，
迁移器对 sqlite 返回 ErrSQLiteAutoMigrate。

# 核心类型

  - Migrator / SchemaMigrator：Up/Down/DownAll/Goto/Force/Version/Status/Info，
    ctx 结束时通过 GracefulStop 在当前步骤后停止。
  - CheckCurrent：serve 启动时检查 schema 是否落后（ErrSchemaBehind）。
  - CLI：命令行交互层，Run 按子命令分发并格式化输出。
*/
package migration
