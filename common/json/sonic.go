//go:build (linux || windows || darwin) && amd64 && !stdjson

// Package json 在支持的平台上使用 sonic 编解码，其余平台退回 encoding/json。
//
// 以 -tags stdjson 构建可强制使用标准库。
package json

import "github.com/bytedance/sonic"

// Name 是当前使用的实现。
const Name = "sonic"

var std = sonic.ConfigStd

var (
	Marshal    = std.Marshal
	Unmarshal  = std.Unmarshal
	NewEncoder = std.NewEncoder
)
