// Package resp 负责补全应用返回的响应头，并按分帧方式写出正文。
package resp

import (
	"sort"
	"strings"
	"time"

	"github.com/favbox/ferry/internal/bytesconv"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/consts"
)

// Framing 是响应头确定后正文的写出方式。
type Framing struct {
	// SendBody 为假时丢弃全部正文，如 HEAD 请求或 1xx/204/304 响应。
	SendBody bool
	// Chunked 表示正文按分块编码写出。
	Chunked bool
	// ContentLength 为 -1 表示未知。
	ContentLength int64
	// Close 表示写完响应后关闭连接。
	Close bool
}

// Version 返回响应使用的协议版本，未知版本按 1.0 处理。
func Version(req *protocol.Request) string {
	if req.Version == consts.HTTP11 {
		return consts.HTTP11
	}
	return consts.HTTP10
}

// AppendHead 按请求的版本与连接意图补全 r 的响应头，
// 将状态行与标头追加到 dst，并返回正文的分帧方式。
//
// ident 非空时写入 Server 标头，应用已设置 Server 时改写为 Via。
func AppendHead(dst []byte, req *protocol.Request, r *protocol.Response, ident string, now time.Time) ([]byte, Framing) {
	version := Version(req)
	f := Framing{
		SendBody:      req.Method != consts.MethodHead && consts.BodyAllowedForStatus(r.StatusCode),
		ContentLength: -1,
	}

	var connection, contentLength, transferEncoding string
	var hasConnection, hasContentLength, hasServer, hasDate bool
	for i := range r.Header {
		h := &r.Header[i]
		h.Key = CanonicalKey(h.Key)
		switch h.Key {
		case consts.HeaderConnection:
			connection, hasConnection = strings.ToLower(strings.TrimSpace(h.Value)), true
		case consts.HeaderContentLength:
			contentLength, hasContentLength = strings.TrimSpace(h.Value), true
		case consts.HeaderServer:
			hasServer = true
		case consts.HeaderDate:
			hasDate = true
		case consts.HeaderTransferEncoding:
			transferEncoding = strings.ToLower(strings.TrimSpace(h.Value))
		}
	}

	if !consts.BodyAllowedForStatus(r.StatusCode) {
		r.DelHeader(consts.HeaderTransferEncoding)
		transferEncoding = ""
		if r.StatusCode != consts.StatusNotModified {
			r.DelHeader(consts.HeaderContentLength)
			hasContentLength = false
		}
	}
	if hasContentLength {
		if n, err := bytesconv.ParseUint(bytesconv.S2b(contentLength)); err == nil {
			f.ContentLength = n
		} else {
			// 无法识别的长度按未知处理
			r.DelHeader(consts.HeaderContentLength)
			hasContentLength = false
		}
	}
	lengthKnown := hasContentLength || !f.SendBody

	reqConnection := strings.ToLower(req.Headers[consts.KeyConnection])
	switch version {
	case consts.HTTP10:
		if reqConnection == consts.ValueKeepAlive && lengthKnown {
			if !hasConnection {
				r.AddHeader(consts.HeaderConnection, "Keep-Alive")
			}
		} else {
			f.Close = true
		}
	case consts.HTTP11:
		if reqConnection == consts.ValueClose {
			f.Close = true
		}
		if !lengthKnown {
			f.Chunked = true
			if transferEncoding != consts.ValueChunked {
				r.SetHeader(consts.HeaderTransferEncoding, consts.ValueChunked)
			}
		}
	}
	if connection == consts.ValueClose {
		f.Close = true
	}
	if f.Close && connection != consts.ValueClose {
		r.SetHeader(consts.HeaderConnection, consts.ValueClose)
	}

	if ident != "" {
		if hasServer {
			r.AddHeader(consts.HeaderVia, ident)
		} else {
			r.AddHeader(consts.HeaderServer, ident)
		}
	}
	if !hasDate {
		r.AddHeader(consts.HeaderDate, string(bytesconv.AppendHTTPDate(nil, now)))
	}

	sort.SliceStable(r.Header, func(i, j int) bool {
		return r.Header[i].Key < r.Header[j].Key
	})

	dst = append(dst, "HTTP/"...)
	dst = append(dst, version...)
	dst = append(dst, ' ')
	dst = append(dst, r.Status()...)
	dst = append(dst, consts.StrCRLF...)
	for _, h := range r.Header {
		dst = append(dst, h.Key...)
		dst = append(dst, ": "...)
		dst = append(dst, h.Value...)
		dst = append(dst, consts.StrCRLF...)
	}
	dst = append(dst, consts.StrCRLF...)
	return dst, f
}

// CanonicalKey 将标头名称的每一段首字母大写、其余小写，如 content-length → Content-Length。
func CanonicalKey(key string) string {
	b := []byte(key)
	upper := true
	for i, c := range b {
		if upper {
			b[i] = bytesconv.ToUpperTable[c]
		} else {
			b[i] = bytesconv.ToLowerTable[c]
		}
		upper = c == '-'
	}
	return bytesconv.B2s(b)
}
