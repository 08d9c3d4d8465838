package network

import (
	"context"
	"net"
)

// Transporter 表示网络传输层接口。
type Transporter interface {
	// Serve 在 ln 上接受连接并回调 h，直到监听器关闭或传输器关闭。
	// 可以对多个监听器并发调用。
	Serve(ln net.Listener, h Handler) error

	// Close 立即关闭传输器。
	Close() error

	// Shutdown 停止接受连接，并等待已有连接结束直到 ctx 截止。
	Shutdown(ctx context.Context) error
}

// Handler 接收连接事件。
type Handler interface {
	// OnConnect 在连接被接纳后调用，返回的上下文随后续回调传递。
	OnConnect(ctx context.Context, conn Conn) context.Context

	// OnData 在连接可读时调用。缓冲为空时实现可阻塞于 Peek(1)。
	// 返回错误表示连接应当关闭。
	OnData(ctx context.Context, conn Conn) error

	// OnClose 在连接关闭后调用一次。
	OnClose(ctx context.Context, conn Conn)
}
