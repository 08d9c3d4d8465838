package standard

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/network"
	"github.com/stretchr/testify/assert"
)

type echoHandler struct {
	connects, closes atomic.Int32
}

func (h *echoHandler) OnConnect(ctx context.Context, _ network.Conn) context.Context {
	h.connects.Add(1)
	return ctx
}

func (h *echoHandler) OnData(_ context.Context, conn network.Conn) error {
	if _, err := conn.Peek(1); err != nil {
		return err
	}
	b, _ := conn.Peek(conn.Len())
	_, _ = conn.WriteBinary(b)
	_ = conn.Skip(len(b))
	_ = conn.Release()
	return conn.Flush()
}

func (h *echoHandler) OnClose(context.Context, network.Conn) {
	h.closes.Add(1)
}

func TestTransportServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	h := &echoHandler{}
	tr := NewTransporter(config.NewOptions(nil))
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ln, h) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	assert.Nil(t, err)
	_, _ = conn.Write([]byte("ping"))
	buf := make([]byte, 4)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, "ping", string(buf))
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Nil(t, tr.Shutdown(ctx))
	assert.Nil(t, <-done)
	assert.Equal(t, int32(1), h.connects.Load())
	assert.Equal(t, int32(1), h.closes.Load())
}

func TestTransportConnectionLimit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	opts := config.NewOptions(nil)
	opts.Limiter = network.NewLimiter(1)
	h := &echoHandler{}
	tr := NewTransporter(opts)
	go tr.Serve(ln, h)
	defer tr.Close()

	first, err := net.Dial("tcp", ln.Addr().String())
	assert.Nil(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, opts.Limiter.Active())

	// 第二个连接停留在内核的 backlog 中，不会被服务
	second, err := net.Dial("tcp", ln.Addr().String())
	assert.Nil(t, err)
	defer second.Close()
	_, _ = second.Write([]byte("x"))
	_ = second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err = second.Read(make([]byte, 1))
	assert.NotNil(t, err)
	assert.Equal(t, int32(1), h.connects.Load())

	// 释放名额后第二个连接被接受
	_ = first.Close()
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, "x", string(buf))
}

// 前 failures 次 Accept 返回错误。
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, errors.New("accept: too many open files")
	}
	return l.Listener.Accept()
}

func TestTransportSurvivesAcceptErrors(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	ln := &flakyListener{Listener: inner}
	ln.failures.Store(2)

	opts := config.NewOptions(nil)
	opts.Limiter = network.NewLimiter(1)
	tr := NewTransporter(opts)
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ln, &echoHandler{}) }()

	conn, err := net.Dial("tcp", inner.Addr().String())
	assert.Nil(t, err)
	_, _ = conn.Write([]byte("pong"))
	buf := make([]byte, 4)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, "pong", string(buf))
	_ = conn.Close()

	// 名额只有一个：失败的 Accept 若未归还名额，上面的连接不会被受理。
	// 连接关闭后 accept 循环立即为下一个连接占用名额。
	assert.Eventually(t, func() bool { return opts.Limiter.Active() == 1 }, time.Second, 5*time.Millisecond)

	assert.Nil(t, tr.Close())
	assert.Nil(t, <-done)
}
