// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于后端未返回 usage 时的指标估算。
package tokenizer
