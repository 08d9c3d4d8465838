// Package server 组装连接层、任务调度器与传输器，提供可运行的 HTTP 服务器。
package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/favbox/ferry/common/config"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/network"
	"github.com/favbox/ferry/network/netpoll"
	"github.com/favbox/ferry/network/standard"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/http1"
	"golang.org/x/sync/errgroup"
)

const (
	_ uint32 = iota
	statusInitialized
	statusRunning
	statusShutdown
	statusClosed
)

var (
	errAlreadyRunning   = errs.NewPublic("服务器已在运行")
	errStatusNotRunning = errs.NewPublic("服务器未在运行")
)

// CtxCallback 是关闭时执行的钩子。
type CtxCallback func(ctx context.Context)

// CtxErrCallback 是启动时执行的钩子，返回错误则不再启动。
type CtxErrCallback func(ctx context.Context) error

// Server 是 ferry 的核心结构。
//
// 持有全部监听器、连接层与任务调度器。
type Server struct {
	options    *config.Options
	listeners  []net.Listener
	transport  network.Transporter
	dispatcher *Dispatcher
	proto      *http1.Server

	status uint32
	stop   chan struct{}
	once   sync.Once

	// OnRun 在开始服务前依次执行。
	OnRun []CtxErrCallback
	// OnShutdown 在关闭时并发执行。
	OnShutdown []CtxCallback

	// 用于接收信号实现优雅退出
	signalWaiter func(err chan error) error
}

// New 校验配置，绑定全部监听地址，并启动工作协程。
func New(handler protocol.Handler, opts ...config.Option) (*Server, error) {
	options := config.NewOptions(opts)
	if err := options.Adjustments.Validate(); err != nil {
		return nil, err
	}

	lns, err := bind(options)
	if err != nil {
		return nil, err
	}

	options.Limiter = network.NewLimiter(options.ConnectionLimit)
	s := &Server{
		options:    options,
		listeners:  lns,
		dispatcher: NewDispatcher(),
		status:     statusInitialized,
		stop:       make(chan struct{}),
	}
	s.transport = newTransporter(options)
	s.proto = http1.NewServer(options, handler, s.dispatcher)
	s.proto.SetServerName(serverName(lns[0]))
	s.dispatcher.SetThreadCount(options.Threads)
	return s, nil
}

func newTransporter(options *config.Options) network.Transporter {
	if options.TransporterNewer != nil {
		return options.TransporterNewer(options)
	}
	if options.Transport == config.TransportNetpoll {
		return netpoll.NewTransporter(options)
	}
	return standard.NewTransporter(options)
}

// Addrs 返回实际监听的地址。
func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.listeners))
	for i, ln := range s.listeners {
		addrs[i] = ln.Addr()
	}
	return addrs
}

// GetOptions 返回服务器配置。
func (s *Server) GetOptions() *config.Options {
	return s.options
}

// Run 在全部监听器上服务，并定期清理空闲连接，直到关闭或出错。
func (s *Server) Run() error {
	if !atomic.CompareAndSwapUint32(&s.status, statusInitialized, statusRunning) {
		return errAlreadyRunning
	}

	ctx := context.Background()
	for i := range s.OnRun {
		if err := s.OnRun[i](ctx); err != nil {
			return err
		}
	}

	o := s.options
	flog.SystemLogger().Infof("使用传输层=%s，工作协程=%d，连接上限=%d，请求头上限=%s，请求体上限=%s",
		o.Transport, o.Threads, o.ConnectionLimit,
		humanize.IBytes(uint64(o.MaxRequestHeaderSize)), humanize.IBytes(uint64(o.MaxRequestBodySize)))

	var g errgroup.Group
	for _, ln := range s.listeners {
		ln := ln
		g.Go(func() error {
			return s.transport.Serve(ln, s.proto)
		})
	}
	g.Go(func() error {
		s.maintenance()
		return nil
	})
	return g.Wait()
}

// 每隔 cleanup_interval 关闭一次空闲连接。
func (s *Server) maintenance() {
	ticker := time.NewTicker(s.options.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.proto.Sweep(); n > 0 {
				flog.SystemLogger().Debugf("清理了 %d 个空闲连接", n)
			}
		case <-s.stop:
			return
		}
	}
}

// Shutdown 优雅关闭：关闭空闲连接，等待处理中的请求写出响应，
// 取消排队的请求，关闭监听器并等待连接协程退出直到 ctx 截止，最后关闭剩余连接。
func (s *Server) Shutdown(ctx context.Context) (err error) {
	if atomic.LoadUint32(&s.status) != statusRunning {
		return errStatusNotRunning
	}
	if !atomic.CompareAndSwapUint32(&s.status, statusRunning, statusShutdown) {
		return nil
	}

	hooks := make(chan struct{})
	go s.executeOnShutdownHooks(ctx, hooks)
	defer func() {
		// 确保钩子执行完成或超时
		select {
		case <-ctx.Done():
			flog.SystemLogger().Infof("执行 OnShutdown 钩子超时：错误=%v", ctx.Err())
		case <-hooks:
		}
		atomic.StoreUint32(&s.status, statusClosed)
	}()

	s.once.Do(func() { close(s.stop) })
	timeout := s.options.ExitWaitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	s.proto.Drain()
	s.dispatcher.Shutdown(true, timeout)

	if err = s.transport.Shutdown(ctx); err != nil && err == ctx.Err() {
		err = nil
	}
	s.proto.CloseAll()
	return err
}

func (s *Server) executeOnShutdownHooks(ctx context.Context, ch chan struct{}) {
	var wg sync.WaitGroup
	for i := range s.OnShutdown {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			s.OnShutdown[index](ctx)
		}(i)
	}
	wg.Wait()
	close(ch)
}

// Close 立即关闭服务器，不等待正在处理的请求。
func (s *Server) Close() error {
	atomic.StoreUint32(&s.status, statusClosed)
	s.once.Do(func() { close(s.stop) })
	s.dispatcher.Shutdown(true, 0)
	s.proto.CloseAll()
	err := s.transport.Close()
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	return err
}

// Spin 运行服务器直至捕获 os.Signal 或 Run 返回错误。
// 支持优雅退出。
func (s *Server) Spin() {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run()
	}()

	signalWaiter := defaultSignalWaiter
	if s.signalWaiter != nil {
		signalWaiter = s.signalWaiter
	}

	if err := signalWaiter(errCh); err != nil {
		flog.SystemLogger().Errorf("收到退出信号：错误=%v", err)
		if err = s.Close(); err != nil {
			flog.SystemLogger().Errorf("退出错误：%v", err)
		}
		return
	}

	flog.SystemLogger().Infof("开始优雅退出，最多等待 %s...", s.options.ExitWaitTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.options.ExitWaitTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		flog.SystemLogger().Errorf("退出错误：%v", err)
	}
}

// SetCustomSignalWaiter 设置自定义的信号等待者。
// f 返回错误后服务器立即退出，否则优雅退出。
func (s *Server) SetCustomSignalWaiter(f func(err chan error) error) {
	s.signalWaiter = f
}

// 信号等待者的默认实现。
// SIGTERM 立即退出。
// SIGHUP|SIGINT 触发优雅退出。
func defaultSignalWaiter(errCh chan error) error {
	signalToNotify := []os.Signal{syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM}
	if signal.Ignored(syscall.SIGHUP) {
		signalToNotify = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, signalToNotify...)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		switch sig {
		case syscall.SIGTERM:
			// 强制退出
			return errs.NewPublic(sig.String())
		case syscall.SIGHUP, syscall.SIGINT:
			flog.SystemLogger().Infof("收到退出信号：%s", sig)
			// 优雅退出
			return nil
		}
	case err := <-errCh:
		// 出现错误，立即退出
		return err
	}
	return nil
}
