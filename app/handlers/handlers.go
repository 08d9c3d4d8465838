// Package handlers 提供命令行可直接运行的内置应用。
package handlers

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/favbox/ferry/common/json"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/consts"
)

var registry = map[string]protocol.Handler{
	"hello": Hello,
	"echo":  Echo,
}

// Lookup 按名称查找内置应用。
//
// 名称可写成 "包:名称" 的形式，此时只取冒号后的部分。
func Lookup(name string) (protocol.Handler, bool) {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	h, ok := registry[name]
	return h, ok
}

// Names 返回全部内置应用的名称。
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hello 对任何请求都回复一行问候。
func Hello(context.Context, *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(200).
		SetHeader(consts.HeaderContentType, "text/plain; charset=utf-8").
		SetBodyString("Hello, world!\n"), nil
}

// EchoRecord 是 Echo 回显的请求摘要。
type EchoRecord struct {
	Method     string            `json:"method"`
	URI        string            `json:"uri"`
	Version    string            `json:"version"`
	Path       string            `json:"path"`
	Query      string            `json:"query"`
	ScriptName string            `json:"script_name"`
	PathInfo   string            `json:"path_info"`
	URLScheme  string            `json:"url_scheme"`
	RemoteAddr string            `json:"remote_addr"`
	ServerName string            `json:"server_name"`
	ServerPort string            `json:"server_port"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	BodyLength int               `json:"body_length"`
}

// Echo 以 JSON 回显请求记录与请求体。
func Echo(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
	}
	out, err := json.Marshal(&EchoRecord{
		Method:     req.Method,
		URI:        req.URI,
		Version:    req.Version,
		Path:       req.Path,
		Query:      req.Query,
		ScriptName: req.ScriptName,
		PathInfo:   req.PathInfo,
		URLScheme:  req.URLScheme,
		RemoteAddr: req.RemoteAddr,
		ServerName: req.ServerName,
		ServerPort: req.ServerPort,
		Headers:    req.Headers,
		Body:       string(body),
		BodyLength: len(body),
	})
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(200).
		SetHeader(consts.HeaderContentType, "application/json").
		SetBody(out), nil
}
