package protocol

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/favbox/ferry/protocol/consts"
)

// HeaderField 是一个响应标头。
type HeaderField struct {
	Key   string
	Value string
}

// Response 是应用处理器返回的响应：状态、有序标头列表与正文流。
type Response struct {
	StatusCode int
	// Reason 为空时使用状态码的标准原因短语。
	Reason string
	Header []HeaderField

	// Body 为空表示没有正文。实现 io.Closer 时在写出后关闭。
	Body io.Reader
}

// NewResponse 创建指定状态码的空响应。
func NewResponse(statusCode int) *Response {
	return &Response{StatusCode: statusCode}
}

// Status 返回状态行中的 "<code> <reason>"。
func (r *Response) Status() string {
	if r.Reason != "" {
		return itoa(int64(r.StatusCode)) + " " + r.Reason
	}
	return consts.StatusText(r.StatusCode)
}

// AddHeader 追加一个标头，允许重复。
func (r *Response) AddHeader(key, value string) *Response {
	r.Header = append(r.Header, HeaderField{Key: key, Value: value})
	return r
}

// SetHeader 设置标头，替换所有同名（不区分大小写）标头。
func (r *Response) SetHeader(key, value string) *Response {
	r.DelHeader(key)
	return r.AddHeader(key, value)
}

// DelHeader 删除所有同名标头。
func (r *Response) DelHeader(key string) {
	kept := r.Header[:0]
	for _, h := range r.Header {
		if !strings.EqualFold(h.Key, key) {
			kept = append(kept, h)
		}
	}
	r.Header = kept
}

// HeaderValue 返回第一个同名标头的值。
func (r *Response) HeaderValue(key string) (string, bool) {
	for _, h := range r.Header {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// SetBody 设置定长正文并同步 Content-Length。
func (r *Response) SetBody(body []byte) *Response {
	r.Body = bytes.NewReader(body)
	return r.SetHeader(consts.HeaderContentLength, itoa(int64(len(body))))
}

// SetBodyString 同 SetBody。
func (r *Response) SetBodyString(body string) *Response {
	return r.SetBody([]byte(body))
}

// SetBodyStream 设置长度未知的流式正文，写出时按需分块。
func (r *Response) SetBodyStream(body io.Reader) *Response {
	r.Body = body
	r.DelHeader(consts.HeaderContentLength)
	return r
}

// Handler 是应用处理器。返回错误时连接层生成 500 响应。
type Handler func(ctx context.Context, req *Request) (*Response, error)
