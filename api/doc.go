// Package api 定义 Roundtable HTTP API 的请求与响应结构。
//
// # API 概览
//
// Roundtable 通过 REST 接口暴露多 persona 会话编排：
//   - 会话设置（名册、回复次数、发言策略、摘要 persona）
//   - 发送用户消息并同步取回本次运行追加的全部发言
//   - 触发摘要运行
//   - 通过 websocket 订阅运行事件
//   - 健康检查与 Prometheus 指标
//
// # 认证
//
// 配置了 API Key 时，/v1 下的接口需要在请求头中携带：
//
//	X-API-Key: your-api-key
//
// # 基础 URL
//
//	http://localhost:8080
package api
