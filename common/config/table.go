package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type setter func(a *Adjustments, raw string) error

// 配置项名称到转换函数的静态表。
var adjustmentTable = []struct {
	name string
	set  setter
}{
	{"host", str(func(a *Adjustments) *string { return &a.Host })},
	{"port", integer(func(a *Adjustments) *int { return &a.Port })},
	{"listen", func(a *Adjustments, raw string) (err error) {
		a.Listen, err = AsListen(raw)
		return
	}},
	{"threads", integer(func(a *Adjustments) *int { return &a.Threads })},
	{"trusted_proxy", str(func(a *Adjustments) *string { return &a.TrustedProxy })},
	{"url_scheme", str(func(a *Adjustments) *string { return &a.URLScheme })},
	{"url_prefix", func(a *Adjustments, raw string) error {
		a.URLPrefix = SlashFixed(raw)
		return nil
	}},
	{"backlog", integer(func(a *Adjustments) *int { return &a.Backlog })},
	{"recv_bytes", integer(func(a *Adjustments) *int { return &a.RecvBytes })},
	{"send_bytes", integer(func(a *Adjustments) *int { return &a.SendBytes })},
	{"outbuf_overflow", size(func(a *Adjustments) *int64 { return &a.OutbufOverflow })},
	{"inbuf_overflow", size(func(a *Adjustments) *int64 { return &a.InbufOverflow })},
	{"connection_limit", integer(func(a *Adjustments) *int { return &a.ConnectionLimit })},
	{"cleanup_interval", duration(func(a *Adjustments) *time.Duration { return &a.CleanupInterval })},
	{"channel_timeout", duration(func(a *Adjustments) *time.Duration { return &a.ChannelTimeout })},
	{"log_socket_errors", boolean(func(a *Adjustments) *bool { return &a.LogSocketErrors })},
	{"max_request_header_size", size(func(a *Adjustments) *int64 { return &a.MaxRequestHeaderSize })},
	{"max_request_body_size", size(func(a *Adjustments) *int64 { return &a.MaxRequestBodySize })},
	{"expose_tracebacks", boolean(func(a *Adjustments) *bool { return &a.ExposeTracebacks })},
	{"ident", str(func(a *Adjustments) *string { return &a.Ident })},
	{"unix_socket", str(func(a *Adjustments) *string { return &a.UnixSocket })},
	{"unix_socket_perms", func(a *Adjustments, raw string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 8, 32)
		if err != nil {
			return err
		}
		a.UnixSocketPerms = uint32(n)
		return nil
	}},
	{"transport", str(func(a *Adjustments) *string { return &a.Transport })},
}

var settersByName = func() map[string]setter {
	m := make(map[string]setter, len(adjustmentTable))
	for _, row := range adjustmentTable {
		m[row.name] = row.set
	}
	return m
}()

// Keys 按声明顺序返回全部可识别的配置项名称。
func Keys() []string {
	keys := make([]string, len(adjustmentTable))
	for i, row := range adjustmentTable {
		keys[i] = row.name
	}
	return keys
}

func str(field func(*Adjustments) *string) setter {
	return func(a *Adjustments, raw string) error {
		*field(a) = raw
		return nil
	}
}

func integer(field func(*Adjustments) *int) setter {
	return func(a *Adjustments, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("不能为负数: %d", n)
		}
		*field(a) = n
		return nil
	}
}

func size(field func(*Adjustments) *int64) setter {
	return func(a *Adjustments, raw string) error {
		n, err := AsBytes(raw)
		if err != nil {
			return err
		}
		*field(a) = n
		return nil
	}
}

func duration(field func(*Adjustments) *time.Duration) setter {
	return func(a *Adjustments, raw string) error {
		d, err := AsDuration(raw)
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("不能为负数: %s", d)
		}
		*field(a) = d
		return nil
	}
}

func boolean(field func(*Adjustments) *bool) setter {
	return func(a *Adjustments, raw string) error {
		b, err := AsBool(raw)
		if err != nil {
			return err
		}
		*field(a) = b
		return nil
	}
}
