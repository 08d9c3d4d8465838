package server

import (
	"net"
	"strings"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/network"
	"github.com/spf13/afero"
)

// WithHostPort 指定监听的主机和端口。默认值："0.0.0.0:8080"。
func WithHostPort(host string, port int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.SetHostPort(host, port)
	}}
}

// WithListen 指定一组 host:port 监听地址，与 WithHostPort 互斥。
//
// 以空格分隔，如 "127.0.0.1:8080 [::1]:8080"。
func WithListen(listen string) config.Option {
	return config.Option{F: func(o *config.Options) {
		addrs, err := config.AsListen(listen)
		if err != nil {
			flog.SystemLogger().Warnf("忽略无效的监听地址 %q：%v", listen, err)
			return
		}
		o.Listen = addrs
	}}
}

// WithUnixSocket 监听 Unix 套接字路径并设置文件权限。
//
// 设置后忽略 TCP 地址。
func WithUnixSocket(path string, perms uint32) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.UnixSocket = path
		o.UnixSocketPerms = perms
	}}
}

// WithThreads 设置工作协程数量。默认值：4。
func WithThreads(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Threads = n
	}}
}

// WithTrustedProxy 设置可信代理的地址，仅来自该地址的 X-Forwarded-Proto 会被采纳。
func WithTrustedProxy(addr string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.TrustedProxy = addr
	}}
}

// WithURLScheme 设置请求记录中默认的 URL 协议。默认值："http"。
func WithURLScheme(scheme string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.URLScheme = scheme
	}}
}

// WithURLPrefix 设置挂载路径前缀。末尾的 "/" 会被去除。
func WithURLPrefix(prefix string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.URLPrefix = config.SlashFixed(strings.TrimSpace(prefix))
	}}
}

// WithRecvBytes 设置单次从连接读取的最大字节数。
func WithRecvBytes(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.RecvBytes = n
	}}
}

// WithSendBytes 设置单次向连接写出的最大字节数。
func WithSendBytes(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.SendBytes = n
	}}
}

// WithInbufOverflow 设置请求体缓冲落盘的阈值。
func WithInbufOverflow(n int64) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.InbufOverflow = n
	}}
}

// WithOutbufOverflow 设置响应缓冲落盘的阈值。
func WithOutbufOverflow(n int64) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.OutbufOverflow = n
	}}
}

// WithConnectionLimit 设置同时接受的最大连接数。默认值：100。
//
// 达到上限后停止接受新连接，直到有连接关闭。
func WithConnectionLimit(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ConnectionLimit = n
	}}
}

// WithCleanupInterval 设置空闲连接的检查间隔。默认值：30 秒。
func WithCleanupInterval(d time.Duration) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.CleanupInterval = d
	}}
}

// WithChannelTimeout 设置连接闲置多久后被关闭。默认值：120 秒。
//
// 正在处理请求的连接不受影响。
func WithChannelTimeout(d time.Duration) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ChannelTimeout = d
	}}
}

// WithLogSocketErrors 是否记录套接字读写错误。默认值：开启。
func WithLogSocketErrors(b bool) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.LogSocketErrors = b
	}}
}

// WithMaxRequestHeaderSize 设置请求头的最大字节数，超出返回 431。
func WithMaxRequestHeaderSize(n int64) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.MaxRequestHeaderSize = n
	}}
}

// WithMaxRequestBodySize 设置请求体的最大字节数，超出返回 413。默认值：1GB。
func WithMaxRequestBodySize(n int64) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.MaxRequestBodySize = n
	}}
}

// WithExposeTracebacks 是否在 500 响应中附带错误与调用栈。
//
// 仅用于开发环境。
func WithExposeTracebacks(b bool) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ExposeTracebacks = b
	}}
}

// WithIdent 设置 Server 响应头的值。
func WithIdent(ident string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Ident = ident
	}}
}

// WithNetwork 选择传输层："standard" 或 "netpoll"。默认值："standard"。
//
// 两者对 connection_limit 的处理不同：standard 在名额用尽时暂停 Accept，新连接在内核队列中等待；
// netpoll 接受后立即关闭超出上限的连接，客户端会看到连接被关闭。
func WithNetwork(nw string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Transport = nw
	}}
}

// WithExitWaitTime 设置优雅退出的等待时间。默认值：5 秒。
func WithExitWaitTime(t time.Duration) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ExitWaitTimeout = t
	}}
}

// WithListenConfig 设置监听器的配置，可用于设置套接字选项。
func WithListenConfig(l *net.ListenConfig) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ListenConfig = l
	}}
}

// WithTransport 设置自定义传输器的创建方法。
func WithTransport(transporter func(opts *config.Options) network.Transporter) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.TransporterNewer = transporter
	}}
}

// WithTempFs 设置缓冲落盘所用的文件系统。
func WithTempFs(fs afero.Fs) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.TempFs = fs
	}}
}

// WithAdjustments 以字符串键值表批量设置参数，键与命令行参数同名（下划线形式）。
//
// 解析失败时记录警告，其余键值照常生效。
func WithAdjustments(kw map[string]string) config.Option {
	return config.Option{F: func(o *config.Options) {
		if err := o.Adjustments.Set(kw); err != nil {
			flog.SystemLogger().Warnf("部分配置项未生效：%v", err)
		}
	}}
}
