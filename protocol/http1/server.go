package http1

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/network"
	"github.com/favbox/ferry/protocol"
	"github.com/favbox/ferry/protocol/http1/req"
)

var _ network.Handler = (*Server)(nil)

// Task 是交给任务调度器执行的工作单元。
type Task interface {
	// Service 在工作协程中执行。
	Service()
	// Defer 在入队前调用。
	Defer()
	// Cancel 在任务被放弃时调用，Service 不会再被调用。
	Cancel()
}

// Dispatcher 接收待执行的任务。
type Dispatcher interface {
	AddTask(task Task) error
}

type channelKey struct{}

// Server 表示 HTTP/1.x 连接层。实现 network.Handler，为每个连接创建一个 Channel。
type Server struct {
	opts       *config.Options
	handler    protocol.Handler
	dispatcher Dispatcher
	limits     req.Limits

	serverName string
	serverPort string

	mu       sync.Mutex
	channels map[*Channel]struct{}
	draining atomic.Bool

	// now 便于测试替换时钟
	now func() time.Time
}

// NewServer 创建 HTTP/1.x 连接层。
func NewServer(opts *config.Options, handler protocol.Handler, dispatcher Dispatcher) *Server {
	return &Server{
		opts:       opts,
		handler:    handler,
		dispatcher: dispatcher,
		limits:     req.LimitsFrom(opts),
		serverName: opts.Host,
		channels:   make(map[*Channel]struct{}),
		now:        time.Now,
	}
}

// SetServerName 设置请求记录中的服务器名称与端口。
func (s *Server) SetServerName(name, port string) {
	s.serverName, s.serverPort = name, port
}

// OnConnect 为新连接创建 Channel 并登记。
func (s *Server) OnConnect(ctx context.Context, conn network.Conn) context.Context {
	ch := newChannel(s, conn)
	s.mu.Lock()
	s.channels[ch] = struct{}{}
	s.mu.Unlock()
	stats.ConnectionsActive.Inc()
	return context.WithValue(ctx, channelKey{}, ch)
}

// OnData 驱动连接对应的 Channel。
func (s *Server) OnData(ctx context.Context, conn network.Conn) error {
	ch, ok := ctx.Value(channelKey{}).(*Channel)
	if !ok {
		return errNoChannel
	}
	return ch.serve()
}

// OnClose 注销连接对应的 Channel 并释放其缓冲区。
func (s *Server) OnClose(ctx context.Context, conn network.Conn) {
	ch, ok := ctx.Value(channelKey{}).(*Channel)
	if !ok {
		return
	}
	s.mu.Lock()
	_, found := s.channels[ch]
	delete(s.channels, ch)
	s.mu.Unlock()
	if found {
		stats.ConnectionsActive.Dec()
	}
	ch.onClosed()
}

// Sweep 关闭空闲超过 channel_timeout 且没有请求在处理中的连接，返回关闭的数量。
func (s *Server) Sweep() int {
	now := s.now()
	var idle []*Channel
	s.mu.Lock()
	for ch := range s.channels {
		if !ch.InFlight() && now.Sub(ch.LastActivity()) > s.opts.ChannelTimeout {
			idle = append(idle, ch)
		}
	}
	s.mu.Unlock()

	for _, ch := range idle {
		flog.SystemLogger().Debugf("关闭空闲连接 %s", ch.addr)
		_ = ch.Close()
	}
	stats.ChannelsIdleClosed.Add(float64(len(idle)))
	return len(idle)
}

// Drain 进入排空状态并关闭没有请求在处理中的连接，返回关闭的数量。
//
// 处理中的连接在写出当前响应后关闭，此后不再读取新的请求。
func (s *Server) Drain() int {
	s.draining.Store(true)
	s.mu.Lock()
	var idle []*Channel
	for ch := range s.channels {
		if !ch.InFlight() {
			idle = append(idle, ch)
		}
	}
	s.mu.Unlock()

	for _, ch := range idle {
		_ = ch.Close()
	}
	return len(idle)
}

// CloseAll 关闭全部连接。
func (s *Server) CloseAll() {
	s.mu.Lock()
	all := make([]*Channel, 0, len(s.channels))
	for ch := range s.channels {
		all = append(all, ch)
	}
	s.mu.Unlock()
	for _, ch := range all {
		_ = ch.Close()
	}
}

// Len 返回当前登记的连接数。
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}
