package req

import (
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/consts"
)

// Outcome 是解析结束后的结果。
//
// 失败时 Err 非空，Request 是合成的 "GET / HTTP/1.0"，以便连接层照常生成错误响应。
type Outcome struct {
	Request *protocol.Request
	Err     *errs.HTTPError
	// Empty 表示只收到了空行，没有实际请求。
	Empty bool
	// Close 表示响应后应关闭连接。
	Close bool
}

// Outcome 返回解析结果。仅在 Completed 后调用。
func (p *Parser) Outcome() Outcome {
	if p.err != nil {
		return Outcome{Request: fallbackRequest(), Err: p.err, Close: true}
	}
	if p.empty {
		return Outcome{Empty: true}
	}
	r := &protocol.Request{
		Method:      p.line.method,
		URI:         p.line.uri,
		Version:     p.line.version,
		Path:        p.uri.path,
		Query:       p.uri.query,
		Fragment:    p.uri.fragment,
		ProxyScheme: p.uri.scheme,
		ProxyNetloc: p.uri.netloc,
		Headers:     p.headers,
		Body:        protocol.NoBody,
	}
	if p.receiver != nil {
		r.Body = p.receiver.Buffer().Reader()
	}
	return Outcome{Request: r, Close: p.connectionClose}
}

func fallbackRequest() *protocol.Request {
	return &protocol.Request{
		Method:  consts.MethodGet,
		URI:     "/",
		Version: consts.HTTP10,
		Path:    "/",
		Headers: map[string]string{},
		Body:    protocol.NoBody,
	}
}
