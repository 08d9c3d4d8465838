package server

import (
	"context"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/favbox/ferry/common/config"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/network"
	"golang.org/x/sys/unix"
)

// 默认的监听配置：开启 SO_REUSEADDR，重启时不必等待 TIME_WAIT。
func defaultListenConfig() *net.ListenConfig {
	return &net.ListenConfig{Control: func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return opErr
	}}
}

// 按配置绑定全部监听地址。任一地址失败时关闭已绑定的监听器。
func bind(opts *config.Options) ([]net.Listener, error) {
	warnBacklog(opts.Backlog)
	lc := opts.ListenConfig
	if lc == nil {
		lc = defaultListenConfig()
	}

	if opts.UnixSocket != "" {
		ln, err := bindUnix(lc, opts.UnixSocket, os.FileMode(opts.UnixSocketPerms))
		if err != nil {
			return nil, err
		}
		return []net.Listener{ln}, nil
	}

	var lns []net.Listener
	for _, addr := range opts.Addresses() {
		ln, err := lc.Listen(context.Background(), "tcp", addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			return nil, errs.New(err, errs.ErrorTypePublic, addr)
		}
		lns = append(lns, ln)
	}
	return lns, nil
}

// net.Listen 总是使用内核的 somaxconn 作为监听队列长度。
func warnBacklog(backlog int) {
	if def := config.DefaultAdjustments().Backlog; backlog != def {
		flog.SystemLogger().Warnf("backlog=%d 被忽略，监听队列长度由内核 somaxconn 决定", backlog)
	}
}

func bindUnix(lc *net.ListenConfig, path string, perms os.FileMode) (net.Listener, error) {
	if err := network.UnlinkUdsFile("unix", path); err != nil {
		return nil, err
	}
	ln, err := lc.Listen(context.Background(), "unix", path)
	if err != nil {
		return nil, errs.New(err, errs.ErrorTypePublic, path)
	}
	if err = os.Chmod(path, perms); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln, nil
}

// 计算请求记录中的服务器名称与端口。
func serverName(ln net.Listener) (name, port string) {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return "localhost", ""
	}
	port = strconv.Itoa(addr.Port)
	if addr.IP == nil || addr.IP.IsUnspecified() {
		if host, err := os.Hostname(); err == nil {
			return host, port
		}
		return "localhost", port
	}
	return addr.IP.String(), port
}
