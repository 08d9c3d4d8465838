package http1

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/favbox/ferry/common/buffer"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/network"
	"github.com/favbox/ferry/protocol/consts"
	"github.com/favbox/ferry/protocol/http1/req"
)

var (
	errNoChannel       = errs.NewPrivate("上下文中没有 Channel")
	errShortConnection = errs.New(errs.ErrConnectionClosed, errs.ErrorTypePrivate, "响应后关闭连接")
)

// Channel 驱动一个连接：增量解析请求、交给调度器执行、写回响应。
//
// 解析与写出都在连接的读协程中进行，工作协程只把响应写入 outbuf。
// 同一时刻至多有一个请求在处理中。
type Channel struct {
	srv  *Server
	conn network.Conn
	addr string

	ctx    context.Context
	cancel context.CancelFunc

	parser       *req.Parser // 正在解析的请求
	pending      *req.Parser // 已解析完毕、等待工作协程处理的请求
	sentContinue bool
	outbuf       *buffer.Overflowable
	trigger      trigger
	queuedAt     time.Time

	lastActivity atomic.Int64
	inFlight     atomic.Bool
	willClose    atomic.Bool

	mu   sync.Mutex
	busy bool // 工作协程正在使用 pending 与 outbuf
	dead bool // 连接已关闭
}

func newChannel(s *Server, conn network.Conn) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		srv:     s,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		outbuf:  buffer.New(s.opts.TempFs, s.opts.OutbufOverflow),
		trigger: newTrigger(),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		ch.addr = addr.String()
	}
	ch.touch()
	return ch
}

// LastActivity 返回最近一次读写的时间。
func (ch *Channel) LastActivity() time.Time {
	return time.Unix(0, ch.lastActivity.Load())
}

// InFlight 报告是否有请求正在处理或写出。
func (ch *Channel) InFlight() bool {
	return ch.inFlight.Load()
}

// Close 关闭连接。阻塞在读取或等待工作协程的读协程随即退出。
func (ch *Channel) Close() error {
	ch.willClose.Store(true)
	ch.cancel()
	return ch.conn.Close()
}

func (ch *Channel) touch() {
	ch.lastActivity.Store(ch.srv.now().UnixNano())
}

// 处理连接上已缓冲的全部数据。缓冲为空时先阻塞等待至少一个字节。
// 返回错误表示连接应当关闭。
func (ch *Channel) serve() error {
	if ch.srv.draining.Load() {
		return errShortConnection
	}
	if ch.conn.Len() == 0 {
		if _, err := ch.conn.Peek(1); err != nil {
			return ch.readError(err)
		}
	}

	for ch.conn.Len() > 0 {
		data, err := ch.conn.Peek(min(ch.conn.Len(), ch.srv.opts.RecvBytes))
		if err != nil {
			return ch.readError(err)
		}
		ch.touch()
		n := ch.received(data)
		if err = ch.conn.Skip(n); err != nil {
			return err
		}
		_ = ch.conn.Release()

		if ch.pending != nil {
			if err = ch.dispatch(); err != nil {
				return err
			}
		}
		if ch.willClose.Load() || ch.srv.draining.Load() {
			return errShortConnection
		}
	}
	return nil
}

// 将 data 喂给解析器，首个请求完成即停止，返回消费的字节数。
func (ch *Channel) received(data []byte) int {
	consumed := 0
	for len(data) > 0 && ch.pending == nil {
		if ch.parser == nil {
			ch.parser = req.NewParser(ch.srv.limits)
		}
		p := ch.parser
		n := p.Received(data)
		consumed += n
		data = data[n:]

		if p.HeadersFinished() && p.ExpectContinue() && !p.Completed() && !ch.sentContinue {
			ch.sendContinue()
		}
		if !p.Completed() {
			if n == 0 {
				break
			}
			continue
		}

		ch.parser, ch.sentContinue = nil, false
		if p.Empty() {
			_ = p.Close()
			continue
		}
		ch.pending = p
	}
	return consumed
}

func (ch *Channel) sendContinue() {
	ch.sentContinue = true
	if _, err := ch.conn.WriteBinary(consts.StrContinue); err == nil {
		_ = ch.conn.Flush()
	}
	ch.touch()
}

// 将已完成的请求交给调度器，等待响应写入 outbuf 后写出。
func (ch *Channel) dispatch() error {
	ch.inFlight.Store(true)
	defer ch.inFlight.Store(false)

	if err := ch.srv.dispatcher.AddTask(ch); err != nil {
		return err
	}
	if !ch.trigger.wait(ch.ctx) {
		return errs.ErrConnectionClosed
	}
	return ch.flush()
}

// 以 send_bytes 为单位写出 outbuf。
func (ch *Channel) flush() error {
	for ch.outbuf.Len() > 0 {
		b, err := ch.outbuf.Get(ch.srv.opts.SendBytes, true)
		if err != nil {
			return err
		}
		if _, err = ch.conn.WriteBinary(b); err == nil {
			err = ch.conn.Flush()
		}
		if err != nil {
			ch.logSocketError(err)
			return err
		}
		stats.ResponseBytesTotal.Add(float64(len(b)))
		ch.touch()
	}
	return ch.outbuf.Prune()
}

func (ch *Channel) readError(err error) error {
	if en, ok := ch.conn.(network.ErrorNormalization); ok {
		err = en.ToFerryError(err)
	}
	ch.logSocketError(err)
	return err
}

func (ch *Channel) logSocketError(err error) {
	if !ch.srv.opts.LogSocketErrors || ch.willClose.Load() {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, errs.ErrConnectionClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	flog.SystemLogger().Errorf(flog.SocketErrorFormat, ch.addr, err)
}

// --- 实现 Task ---

// Defer 记录入队时间。
func (ch *Channel) Defer() {
	ch.queuedAt = time.Now()
}

// Service 在工作协程中处理 pending 请求，把响应写入 outbuf。
func (ch *Channel) Service() {
	defer ch.trigger.pull()
	if !ch.begin() {
		return
	}
	defer ch.end()

	stats.DispatcherQueueSeconds.Observe(time.Since(ch.queuedAt).Seconds())
	p := ch.pending
	out := p.Outcome()

	var closeAfter bool
	if out.Err != nil {
		closeAfter = ch.serviceError(out)
	} else {
		closeAfter = ch.serviceApp(out)
	}
	if closeAfter || out.Close {
		ch.willClose.Store(true)
	}
}

// Cancel 放弃 pending 请求，并让读协程在醒来后关闭连接。
func (ch *Channel) Cancel() {
	ch.willClose.Store(true)
	ch.trigger.pull()
}

func (ch *Channel) begin() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.dead {
		return false
	}
	ch.busy = true
	return true
}

// 须在清除 busy 之前释放 pending，否则与 onClosed 竞争。
func (ch *Channel) end() {
	if p := ch.pending; p != nil {
		_ = p.Close()
		ch.pending = nil
	}

	ch.mu.Lock()
	ch.busy = false
	dead := ch.dead
	ch.mu.Unlock()
	if dead {
		ch.release()
	}
}

// 连接关闭后调用。工作协程仍在处理时由它负责释放。
func (ch *Channel) onClosed() {
	ch.cancel()
	ch.mu.Lock()
	ch.dead = true
	busy := ch.busy
	ch.mu.Unlock()
	if !busy {
		ch.release()
	}
}

func (ch *Channel) release() {
	if ch.parser != nil {
		_ = ch.parser.Close()
		ch.parser = nil
	}
	if ch.pending != nil {
		_ = ch.pending.Close()
		ch.pending = nil
	}
	_ = ch.outbuf.Close()
}
