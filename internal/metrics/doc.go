// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标收集器。

Collector 同时实现 conversation.Observer（运行数、运行时长、进行中的运行、
追加的发言数）与 dispatch.MetricsRecorder（后端调用次数、时延、token 用量），
并记录 HTTP 请求、预览缓存命中与数据库连接数。
*/
package metrics
