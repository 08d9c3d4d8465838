package http1

import (
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/favbox/ferry/common/config"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/consts"
	"github.com/favbox/ferry/protocol/http1/req"
	"github.com/favbox/ferry/protocol/http1/resp"
)

const internalErrorBody = "The server encountered an unexpected internal server error"

// 调用应用处理器并写出其响应，返回是否须关闭连接。
func (ch *Channel) serviceApp(out req.Outcome) bool {
	started := time.Now()
	r := out.Request
	ch.decorate(r)

	res, err := ch.callHandler(r)
	if err != nil {
		flog.SystemLogger().Errorf("处理 %s %s 时出错: %v", r.Method, r.URI, err)
		body := internalErrorBody
		if ch.srv.opts.ExposeTracebacks {
			body += "\r\n\r\n" + err.Error()
		}
		res = errorResponse(errs.NewInternalServerError(err, body), ch.srv.opts.Ident)
	}
	if res == nil {
		res = protocol.NewResponse(consts.StatusNoContent)
	}

	closeAfter := ch.writeResponse(r, res)
	stats.ObserveRequest(res.StatusCode, started)
	return closeAfter
}

// 以 HTTP 错误生成响应，连接随后关闭。
func (ch *Channel) serviceError(out req.Outcome) bool {
	started := time.Now()
	he := out.Err
	if ch.srv.opts.LogSocketErrors {
		flog.SystemLogger().Warnf("来自 %s 的请求无效: %v", ch.addr, he)
	}
	res := errorResponse(he, ch.srv.opts.Ident)
	ch.writeResponse(out.Request, res)
	stats.ObserveRequest(res.StatusCode, started)
	return true
}

// 调用处理器，将恐慌转为错误。
func (ch *Channel) callHandler(r *protocol.Request) (res *protocol.Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			res, err = nil, fmt.Errorf("%v\n%s", v, debug.Stack())
		}
	}()
	return ch.srv.handler(ch.ctx, r)
}

// 将响应头与正文写入 outbuf。
func (ch *Channel) writeResponse(r *protocol.Request, res *protocol.Response) (closeAfter bool) {
	if c, ok := res.Body.(io.Closer); ok {
		defer c.Close()
	}

	if ch.srv.draining.Load() {
		res.SetHeader(consts.HeaderConnection, consts.ValueClose)
	}
	head, f := resp.AppendHead(make([]byte, 0, 256), r, res, ch.srv.opts.Ident, ch.srv.now())
	if _, err := ch.outbuf.Write(head); err != nil {
		return true
	}

	bw := resp.NewBodyWriter(ch.outbuf, f)
	if res.Body != nil {
		if _, err := io.Copy(bw, res.Body); err != nil {
			// 响应头已写出，只能中断连接
			flog.SystemLogger().Errorf("写出 %s 的响应正文失败: %v", r.URI, err)
			return true
		}
	}
	if err := bw.Close(); err != nil {
		return true
	}
	if bw.Short() {
		flog.SystemLogger().Warnf("应用返回的正文少于 Content-Length %d，写出 %d 字节后关闭连接", f.ContentLength, bw.Written())
		return true
	}
	return f.Close
}

// 补全连接层为请求记录提供的字段。
func (ch *Channel) decorate(r *protocol.Request) {
	opts := ch.srv.opts

	path := r.Path
	for strings.HasPrefix(path, "//") {
		path = path[1:]
	}
	r.ScriptName, r.PathInfo = splitPrefix(path, opts.URLPrefix)

	r.RemoteAddr = remoteHost(ch.conn.RemoteAddr())
	r.URLScheme = opts.URLScheme
	if opts.TrustedProxy != "" && r.RemoteAddr == opts.TrustedProxy {
		if proto, ok := r.Headers[consts.KeyForwardedProto]; ok {
			delete(r.Headers, consts.KeyForwardedProto)
			if proto = strings.ToLower(strings.TrimSpace(proto)); proto == "http" || proto == "https" {
				r.URLScheme = proto
			}
		}
	}
	r.ServerName, r.ServerPort = ch.srv.serverName, ch.srv.serverPort
}

// 按 url_prefix 拆出 ScriptName 与 PathInfo。
func splitPrefix(path, prefix string) (scriptName, pathInfo string) {
	if prefix == "" {
		return "", path
	}
	if path == prefix {
		return prefix, ""
	}
	if strings.HasPrefix(path, prefix+"/") {
		return prefix, path[len(prefix):]
	}
	return prefix, path
}

func remoteHost(addr net.Addr) string {
	if addr == nil || addr.Network() == "unix" {
		return "localhost"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// 由 HTTP 错误生成纯文本响应。
func errorResponse(he *errs.HTTPError, ident string) *protocol.Response {
	if ident == "" {
		ident = config.DefaultIdent
	}
	body := he.Reason + "\r\n\r\n" + he.Body + "\r\n\r\n(generated by " + ident + ")"
	r := protocol.NewResponse(he.Code)
	r.Reason = he.Reason
	r.SetHeader(consts.HeaderContentType, consts.ValueTextPlainUTF8)
	r.SetHeader(consts.HeaderConnection, consts.ValueClose)
	return r.SetBodyString(body)
}
