package standard

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/network"
)

var _ network.Transporter = (*transport)(nil)

type transport struct {
	// 每个连接的读缓冲区大小，即单次读取的字节数。
	readBufferSize  int
	writeTimeout    time.Duration
	logSocketErrors bool
	limiter         *network.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	lock   sync.Mutex
	lns    []net.Listener
	conns  sync.WaitGroup
}

// Serve 接受连接并为每个连接启动一个协程。
//
// 连接名额在 Accept 之前申请，名额已满时不再接受新连接。
func (t *transport) Serve(ln net.Listener, h network.Handler) error {
	t.lock.Lock()
	if t.ctx.Err() != nil {
		t.lock.Unlock()
		return ln.Close()
	}
	t.lns = append(t.lns, ln)
	t.lock.Unlock()

	flog.SystemLogger().Infof("开始服务 %s", ln.Addr().String())
	var delay time.Duration
	for {
		if t.limiter != nil {
			if err := t.limiter.Acquire(t.ctx); err != nil {
				return nil
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if t.limiter != nil {
				t.limiter.Release()
			}
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if t.logSocketErrors {
				flog.SystemLogger().Warnf("接受连接失败: %v", err)
			}
			// 临时错误时退避重试
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			time.Sleep(delay)
			continue
		}
		delay = 0

		t.conns.Add(1)
		go t.serveConn(conn, h)
	}
}

func (t *transport) serveConn(conn net.Conn, h network.Handler) {
	c := newConn(conn, t.readBufferSize)
	_ = c.SetWriteTimeout(t.writeTimeout)
	defer func() {
		_ = c.Close()
		if t.limiter != nil {
			t.limiter.Release()
		}
		t.conns.Done()
	}()

	ctx := h.OnConnect(context.Background(), c)
	for {
		if err := h.OnData(ctx, c); err != nil {
			break
		}
	}
	_ = c.Close()
	h.OnClose(ctx, c)
	c.recycle()
}

// Close 关闭监听器，不等待已有连接。
func (t *transport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	if err := t.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Shutdown 关闭监听器，并等待已有连接的协程退出直到 ctx 截止。
func (t *transport) Shutdown(ctx context.Context) error {
	t.lock.Lock()
	t.cancel()
	for _, ln := range t.lns {
		_ = ln.Close()
		addr := ln.Addr()
		_ = network.UnlinkUdsFile(addr.Network(), addr.String())
	}
	t.lns = nil
	t.lock.Unlock()

	done := make(chan struct{})
	go func() {
		t.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewTransporter 创建标准库网络传输器。
func NewTransporter(options *config.Options) network.Transporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &transport{
		readBufferSize:  options.RecvBytes,
		writeTimeout:    options.ChannelTimeout,
		logSocketErrors: options.LogSocketErrors,
		limiter:         options.Limiter,
		ctx:             ctx,
		cancel:          cancel,
	}
}
