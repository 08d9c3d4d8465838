// Package protocol 定义连接层交给应用处理器的请求记录与应用返回的响应。
package protocol

import (
	"io"
	"strings"

	"github.com/favbox/ferry/internal/bytesconv"
	"github.com/favbox/ferry/protocol/consts"
)

// Body 是请求体的只读流，无论内容驻留内存还是临时文件。
type Body interface {
	io.Reader
}

// SizedBody 是长度已知的请求体。
type SizedBody interface {
	Body
	Len() int64
}

// NoBody 是无字节的请求体。
var NoBody SizedBody = noBody{}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (noBody) Len() int64               { return 0 }

// Request 是一次完整解析后的 HTTP 请求。
//
// Headers 的键为全大写且 '-' 替换为 '_'，重复的标头以 ", " 合并。
type Request struct {
	Method  string
	URI     string // 请求行中的原始目标
	Version string // "1.0" 或 "1.1"

	Path        string // 已百分号解码
	Query       string
	Fragment    string
	ProxyScheme string // 绝对形式请求目标中的协议
	ProxyNetloc string // 绝对形式请求目标中的主机

	// ScriptName 是匹配到的 url_prefix，PathInfo 是其后的路径。
	ScriptName string
	PathInfo   string

	Headers map[string]string
	Body    Body

	RemoteAddr string
	URLScheme  string
	ServerName string
	ServerPort string
}

// HeaderKey 将标头名称规范化为 Headers 中的键。
func HeaderKey(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
			continue
		}
		b[i] = bytesconv.ToUpperTable[c]
	}
	return bytesconv.B2s(b)
}

// Header 返回名为 name 的标头值。name 可用原始写法，如 Content-Type。
func (r *Request) Header(name string) string {
	return r.Headers[HeaderKey(name)]
}

// ContentLength 返回请求体长度，未知时返回 -1。
func (r *Request) ContentLength() int64 {
	if sb, ok := r.Body.(SizedBody); ok {
		return sb.Len()
	}
	if v, ok := r.Headers[consts.KeyContentLength]; ok {
		if n, err := bytesconv.ParseUint(bytesconv.S2b(v)); err == nil {
			return n
		}
	}
	return -1
}

// KeepAliveRequested 报告客户端是否显式要求保持连接。
func (r *Request) KeepAliveRequested() bool {
	return strings.EqualFold(r.Headers[consts.KeyConnection], consts.ValueKeepAlive)
}

// CloseRequested 报告客户端是否显式要求关闭连接。
func (r *Request) CloseRequested() bool {
	return strings.EqualFold(r.Headers[consts.KeyConnection], consts.ValueClose)
}
