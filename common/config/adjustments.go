package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	exprValidator "github.com/bytedance/go-tagexpr/v2/validator"
	"github.com/dustin/go-humanize"
	errs "github.com/favbox/ferry/common/errors"
)

const (
	TransportStandard = "standard"
	TransportNetpoll  = "netpoll"

	// DefaultIdent 是默认的 Server 标头。
	DefaultIdent = "ferry"

	defaultHost = "0.0.0.0"
	defaultPort = 8080
)

// Adjustments 是服务器的全部可调参数。构建完成后只读。
type Adjustments struct {
	Host   string
	Port   int      `vd:"$>=0 && $<=65535"`
	Listen []string // 规范化后的 host:port 列表，与 Host/Port 互斥

	// Threads 是任务调度器的工作协程数。
	Threads int `vd:"$>=1"`

	// TrustedProxy 是受信任代理的 IP，来自它的 X-Forwarded-Proto 会覆盖 URLScheme。
	TrustedProxy string
	URLScheme    string `vd:"len($)>0"`
	// URLPrefix 为空或形如 /segment，不以斜杠结尾。
	URLPrefix string

	Backlog   int `vd:"$>=0"`
	RecvBytes int `vd:"$>=1"` // 单次从连接读取的最大字节数
	SendBytes int `vd:"$>=1"` // 单次向连接写出的最大字节数

	OutbufOverflow int64 `vd:"$>=0"` // 响应缓冲超过该值后落盘
	InbufOverflow  int64 `vd:"$>=0"` // 请求体缓冲超过该值后落盘

	ConnectionLimit int           `vd:"$>=1"`
	CleanupInterval time.Duration `vd:"$>0"`
	ChannelTimeout  time.Duration `vd:"$>0"`
	LogSocketErrors bool

	MaxRequestHeaderSize int64 `vd:"$>=0"`
	MaxRequestBodySize   int64 `vd:"$>=0"`
	ExposeTracebacks     bool

	// Ident 用作响应的 Server 标头，为空则不输出。
	Ident string

	UnixSocket      string
	UnixSocketPerms uint32 `vd:"$>=0 && $<=511"`

	Transport string `vd:"$=='standard' || $=='netpoll'"`

	hostPortSet bool
}

// DefaultAdjustments 返回默认参数。
func DefaultAdjustments() Adjustments {
	return Adjustments{
		Host:                 defaultHost,
		Port:                 defaultPort,
		Threads:              4,
		URLScheme:            "http",
		Backlog:              1024,
		RecvBytes:            8192,
		SendBytes:            18000,
		OutbufOverflow:       1 << 20,
		InbufOverflow:        512 << 10,
		ConnectionLimit:      100,
		CleanupInterval:      30 * time.Second,
		ChannelTimeout:       120 * time.Second,
		LogSocketErrors:      true,
		MaxRequestHeaderSize: 256 << 10,
		MaxRequestBodySize:   1 << 30,
		Ident:                DefaultIdent,
		UnixSocketPerms:      0o600,
		Transport:            TransportStandard,
	}
}

// NewAdjustments 按 kw 覆盖默认参数。未知的键、无法转换的值与互斥冲突均返回错误。
func NewAdjustments(kw map[string]string) (*Adjustments, error) {
	adj := DefaultAdjustments()
	if err := adj.Set(kw); err != nil {
		return nil, err
	}
	if err := adj.Validate(); err != nil {
		return nil, err
	}
	return &adj, nil
}

// Set 逐项应用 kw，不做整体校验。
func (a *Adjustments) Set(kw map[string]string) error {
	for key, raw := range kw {
		s, ok := settersByName[key]
		if !ok {
			return errs.Newf(errs.ErrorTypePublic, key, "未知的配置项")
		}
		if err := s(a, raw); err != nil {
			return fmt.Errorf("配置项 %s=%q 无效: %w", key, raw, err)
		}
		if key == "host" || key == "port" {
			a.hostPortSet = true
		}
	}
	return nil
}

var validate = exprValidator.New("vd").SetErrorFactory(func(failPath, msg string) error {
	return errs.Newf(errs.ErrorTypePublic, failPath, "配置校验失败: %s", msg)
})

// Validate 检查数值范围与互斥项。
func (a *Adjustments) Validate() error {
	if len(a.Listen) > 0 && a.hostPortSet {
		return errs.NewPublic("host/port 与 listen 不能同时指定")
	}
	if a.UnixSocket != "" && (a.hostPortSet || len(a.Listen) > 0) {
		return errs.NewPublic("unix_socket 与 host/port/listen 不能同时指定")
	}
	return validate.Validate(a)
}

// Addresses 返回需要监听的 TCP 地址。使用 Unix 套接字时为空。
func (a *Adjustments) Addresses() []string {
	if a.UnixSocket != "" {
		return nil
	}
	if len(a.Listen) > 0 {
		return a.Listen
	}
	return []string{net.JoinHostPort(a.Host, strconv.Itoa(a.Port))}
}

// ExplicitHostPort 报告 host 或 port 是否被显式指定。
func (a *Adjustments) ExplicitHostPort() bool {
	return a.hostPortSet
}

// -------- 转换函数 --------

var truthy = map[string]bool{"t": true, "true": true, "y": true, "yes": true, "on": true, "1": true}
var falsy = map[string]bool{"f": true, "false": true, "n": true, "no": true, "off": true, "0": true, "": true}

// AsBool 将常见的真值写法转为布尔值。
func AsBool(s string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case truthy[v]:
		return true, nil
	case falsy[v]:
		return false, nil
	}
	return false, fmt.Errorf("不是布尔值: %q", s)
}

// AsBytes 解析字节数，支持纯数字及 512KB、1MiB 之类的写法。
func AsBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("字节数不能为负: %d", n)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// AsDuration 解析时长，纯数字按秒计，否则按 time.ParseDuration。
func AsDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// SlashFixed 规范化 URL 前缀：去掉两端斜杠后补一个前导斜杠，空串保持为空。
func SlashFixed(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return ""
	}
	return "/" + s
}

// AsListen 解析空白分隔的监听地址列表。
// 形如 "*:8080"、"[::1]:80"、"127.0.0.1"、"8080"。
func AsListen(s string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range strings.Fields(s) {
		host, port := item, strconv.Itoa(defaultPort)
		if h, p, err := net.SplitHostPort(item); err == nil {
			host, port = h, p
		} else if _, err := strconv.Atoi(item); err == nil {
			host, port = "", item
		}
		if host == "*" {
			host = ""
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return nil, fmt.Errorf("无效的端口: %q", item)
		}
		addr := net.JoinHostPort(host, port)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}
