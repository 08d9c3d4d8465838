package netpoll

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cloudwego/netpoll"
	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/network"
)

var _ network.Transporter = (*transport)(nil)

func init() {
	// 禁用 netpoll 的日志
	netpoll.SetLoggerOutput(io.Discard)
}

type connKey struct{}

type transport struct {
	sync.Mutex
	writeTimeout    time.Duration
	logSocketErrors bool
	limiter         *network.Limiter
	eventLoops      []netpoll.EventLoop
	listeners       []net.Listener
	closed          bool
}

// Serve 为 ln 创建一个事件循环并持续服务，直到监听器关闭。
//
// 连接名额在 OnPrepare 中申请，名额已满的连接被立即关闭。
func (t *transport) Serve(ln net.Listener, h network.Handler) error {
	opts := []netpoll.Option{
		netpoll.WithOnPrepare(func(conn netpoll.Connection) context.Context {
			if t.limiter != nil && !t.limiter.TryAcquire() {
				stats.ConnectionsRejected.Inc()
				if t.logSocketErrors {
					flog.SystemLogger().Warnf("连接数已达上限 %d，拒绝 %s", t.limiter.Limit(), conn.RemoteAddr())
				}
				_ = conn.Close()
				return context.Background()
			}
			if t.writeTimeout > 0 {
				_ = conn.SetWriteTimeout(t.writeTimeout)
			}
			c := newConn(conn)
			ctx := h.OnConnect(context.WithValue(context.Background(), connKey{}, c), c)
			_ = conn.AddCloseCallback(func(netpoll.Connection) error {
				h.OnClose(ctx, c)
				if t.limiter != nil {
					t.limiter.Release()
				}
				return nil
			})
			return ctx
		}),
	}

	eventLoop, err := netpoll.NewEventLoop(func(ctx context.Context, connection netpoll.Connection) error {
		c, ok := ctx.Value(connKey{}).(*Conn)
		if !ok {
			c = newConn(connection)
		}
		if err := h.OnData(ctx, c); err != nil {
			return connection.Close()
		}
		return nil
	}, opts...)
	if err != nil {
		return err
	}

	t.Lock()
	if t.closed {
		t.Unlock()
		return ln.Close()
	}
	t.eventLoops = append(t.eventLoops, eventLoop)
	t.listeners = append(t.listeners, ln)
	t.Unlock()

	flog.SystemLogger().Infof("netpoll 事件循环开始服务 %s", ln.Addr().String())
	return eventLoop.Serve(ln)
}

// Close 强制传输器立即关闭（无超时等待）。
func (t *transport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	return t.Shutdown(ctx)
}

// Shutdown 停止全部事件循环。将等待所有连接关闭，直到触达截止时间。
func (t *transport) Shutdown(ctx context.Context) (err error) {
	t.Lock()
	t.closed = true
	loops, lns := t.eventLoops, t.listeners
	t.eventLoops, t.listeners = nil, nil
	t.Unlock()

	for i, loop := range loops {
		if e := loop.Shutdown(ctx); e != nil && err == nil && ctx.Err() == nil {
			err = e
		}
		addr := lns[i].Addr()
		_ = network.UnlinkUdsFile(addr.Network(), addr.String())
	}
	return err
}

// NewTransporter 创建 netpoll 网络传输器。
//
// netpoll 总是立即接受新连接。连接数达到上限时，超出的连接在接受后立即关闭，
// 并计入 ferry_connections_rejected_total，而标准传输层会让它们留在监听队列中等待名额。
func NewTransporter(options *config.Options) network.Transporter {
	return &transport{
		writeTimeout:    options.ChannelTimeout,
		logSocketErrors: options.LogSocketErrors,
		limiter:         options.Limiter,
	}
}
