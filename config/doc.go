// Package config 提供 Roundtable 的配置管理功能。
//
// 包含配置加载（默认值 → YAML → ROUNDTABLE_ 环境变量）、校验，
// 以及 persona 目录在运行之间的文件监听重载。
package config
