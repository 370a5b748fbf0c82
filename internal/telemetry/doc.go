// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Roundtable 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
//
// RunMeter 作为编排观察者，把运行结束状态、追加的角色发言数与
// 队列长度导出为 OTel 指标。
package telemetry
