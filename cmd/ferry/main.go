// ferry 以指定的内置应用启动 HTTP 服务器。
//
//	ferry [OPTIONS] APP
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/favbox/ferry/app/handlers"
	"github.com/favbox/ferry/app/server"
	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/protocol"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
)

const (
	exitOK = iota
	exitBadArgs
	exitMissingArg
)

// 未指定的参数保持为 nil，不覆盖配置文件与默认值。
type cliOptions struct {
	Config        string `long:"config" value-name:"FILE" description:"先从 JSON 文件读取配置，命令行参数随后覆盖"`
	MetricsListen string `long:"metrics-listen" value-name:"ADDR" description:"在该地址的 /metrics 上提供 Prometheus 指标"`

	Host                 *string `long:"host" description:"监听的主机名或 IP，默认 0.0.0.0"`
	Port                 *string `long:"port" description:"监听的 TCP 端口，默认 8080"`
	Listen               *string `long:"listen" value-name:"HOST:PORT" description:"空白分隔的监听地址，与 --host/--port 互斥"`
	Threads              *string `long:"threads" description:"工作协程数，默认 4"`
	TrustedProxy         *string `long:"trusted-proxy" value-name:"IP" description:"可信代理地址，仅采纳它的 X-Forwarded-Proto"`
	URLScheme            *string `long:"url-scheme" description:"默认的 URL 协议，默认 http"`
	URLPrefix            *string `long:"url-prefix" description:"挂载路径前缀"`
	Backlog              *string `long:"backlog" description:"监听队列长度，默认 1024"`
	RecvBytes            *string `long:"recv-bytes" description:"单次读取的最大字节数，默认 8192"`
	SendBytes            *string `long:"send-bytes" description:"单次写出的最大字节数，默认 18000"`
	OutbufOverflow       *string `long:"outbuf-overflow" description:"响应缓冲落盘阈值，默认 1MiB"`
	InbufOverflow        *string `long:"inbuf-overflow" description:"请求体缓冲落盘阈值，默认 512KiB"`
	ConnectionLimit      *string `long:"connection-limit" description:"同时接受的最大连接数，默认 100"`
	CleanupInterval      *string `long:"cleanup-interval" description:"空闲连接检查间隔，秒或 Go 时长，默认 30"`
	ChannelTimeout       *string `long:"channel-timeout" description:"连接闲置超时，秒或 Go 时长，默认 120"`
	MaxRequestHeaderSize *string `long:"max-request-header-size" description:"请求头上限，默认 256KiB"`
	MaxRequestBodySize   *string `long:"max-request-body-size" description:"请求体上限，默认 1GiB"`
	Ident                *string `long:"ident" description:"Server 响应头，为空则不输出"`
	UnixSocket           *string `long:"unix-socket" value-name:"PATH" description:"监听的 Unix 套接字，与 TCP 地址互斥"`
	UnixSocketPerms      *string `long:"unix-socket-perms" value-name:"OCTAL" description:"Unix 套接字文件权限，默认 600"`
	Transport            *string `long:"transport" choice:"standard" choice:"netpoll" description:"传输层实现"`

	LogSocketErrors    bool `long:"log-socket-errors" description:"记录套接字读写错误（默认）"`
	NoLogSocketErrors  bool `long:"no-log-socket-errors" description:"不记录套接字读写错误"`
	ExposeTracebacks   bool `long:"expose-tracebacks" description:"在 500 响应中附带错误与调用栈"`
	NoExposeTracebacks bool `long:"no-expose-tracebacks" description:"不在 500 响应中附带调用栈（默认）"`

	Args struct {
		App string `positional-arg-name:"APP" description:"内置应用名称，可写作 包:名称"`
	} `positional-args:"yes"`
}

// 将显式给出的命令行参数转为配置项键值。
func (o *cliOptions) adjustments() map[string]string {
	kw := make(map[string]string)
	for key, v := range map[string]*string{
		"host":                    o.Host,
		"port":                    o.Port,
		"listen":                  o.Listen,
		"threads":                 o.Threads,
		"trusted_proxy":           o.TrustedProxy,
		"url_scheme":              o.URLScheme,
		"url_prefix":              o.URLPrefix,
		"backlog":                 o.Backlog,
		"recv_bytes":              o.RecvBytes,
		"send_bytes":              o.SendBytes,
		"outbuf_overflow":         o.OutbufOverflow,
		"inbuf_overflow":          o.InbufOverflow,
		"connection_limit":        o.ConnectionLimit,
		"cleanup_interval":        o.CleanupInterval,
		"channel_timeout":         o.ChannelTimeout,
		"max_request_header_size": o.MaxRequestHeaderSize,
		"max_request_body_size":   o.MaxRequestBodySize,
		"ident":                   o.Ident,
		"unix_socket":             o.UnixSocket,
		"unix_socket_perms":       o.UnixSocketPerms,
		"transport":               o.Transport,
	} {
		if v != nil {
			kw[key] = *v
		}
	}
	toggle(kw, "log_socket_errors", o.LogSocketErrors, o.NoLogSocketErrors)
	toggle(kw, "expose_tracebacks", o.ExposeTracebacks, o.NoExposeTracebacks)
	return kw
}

// --no-xxx 优先。
func toggle(kw map[string]string, key string, on, off bool) {
	switch {
	case off:
		kw[key] = "false"
	case on:
		kw[key] = "true"
	}
}

type invocation struct {
	handler       protocol.Handler
	adjustments   map[string]string
	metricsListen string
}

// 解析命令行。返回 nil 时进程应以返回的退出码结束。
func parseArgs(fs afero.Fs, args []string, stdout, stderr io.Writer) (*invocation, int) {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] APP"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagErr.Message)
			return nil, exitOK
		}
		fmt.Fprintf(stderr, "错误：%v\n\n", err)
		parser.WriteHelp(stderr)
		return nil, exitBadArgs
	}
	if len(rest) > 0 {
		fmt.Fprintf(stderr, "错误：多余的参数 %s\n", strings.Join(rest, " "))
		return nil, exitBadArgs
	}
	if opts.Args.App == "" {
		fmt.Fprintln(stderr, "错误：缺少参数 APP")
		parser.WriteHelp(stderr)
		return nil, exitMissingArg
	}

	handler, ok := handlers.Lookup(opts.Args.App)
	if !ok {
		fmt.Fprintf(stderr, "错误：未知的应用 %q，可用：%s\n", opts.Args.App, strings.Join(handlers.Names(), ", "))
		return nil, exitBadArgs
	}

	kw := make(map[string]string)
	if opts.Config != "" {
		if kw, err = config.LoadFile(fs, opts.Config); err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", err)
			return nil, exitBadArgs
		}
	}
	for k, v := range opts.adjustments() {
		kw[k] = v
	}
	if _, err = config.NewAdjustments(kw); err != nil {
		fmt.Fprintf(stderr, "错误：%v\n", err)
		return nil, exitBadArgs
	}

	return &invocation{handler: handler, adjustments: kw, metricsListen: opts.MetricsListen}, exitOK
}

// 在独立的监听器上提供 Prometheus 指标。
func serveMetrics(ln net.Listener) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.Collectors()...)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			flog.SystemLogger().Errorf("指标服务退出：%v", err)
		}
	}()
	flog.SystemLogger().Infof("指标服务于 http://%s/metrics", ln.Addr())
	return srv
}

func run(args []string) int {
	inv, code := parseArgs(afero.NewOsFs(), args, os.Stdout, os.Stderr)
	if inv == nil {
		return code
	}

	srv, err := server.New(inv.handler, server.WithAdjustments(inv.adjustments))
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return exitBadArgs
	}

	if inv.metricsListen != "" {
		ln, err := net.Listen("tcp", inv.metricsListen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误：%v\n", err)
			_ = srv.Close()
			return exitBadArgs
		}
		metrics := serveMetrics(ln)
		srv.OnShutdown = append(srv.OnShutdown, func(ctx context.Context) {
			_ = metrics.Shutdown(ctx)
		})
	}

	srv.Spin()
	return exitOK
}

func main() {
	os.Exit(run(os.Args[1:]))
}
