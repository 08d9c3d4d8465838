//go:build stdjson || !(amd64 && (linux || windows || darwin))

// Package json 在支持的平台上使用 sonic 编解码，其余平台退回 encoding/json。
package json

import "encoding/json"

// Name 是当前使用的实现。
const Name = "encoding/json"

var (
	Marshal    = json.Marshal
	Unmarshal  = json.Unmarshal
	NewEncoder = json.NewEncoder
)
