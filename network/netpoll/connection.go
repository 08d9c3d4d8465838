package netpoll

import (
	"errors"
	"io"
	"syscall"
	"time"

	"github.com/cloudwego/netpoll"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/network"
)

var (
	_ network.Conn               = (*Conn)(nil)
	_ network.ErrorNormalization = (*Conn)(nil)
)

// Conn 实现基于 netpoll 的网络连接。
type Conn struct {
	netpoll.Connection
}

// --- 实现 network.ErrorNormalization ---

func (c *Conn) ToFerryError(err error) error {
	if errors.Is(err, netpoll.ErrConnClosed) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return errs.ErrConnectionClosed
	}

	// 目前只统一读取超时
	if errors.Is(err, netpoll.ErrReadTimeout) {
		return errs.ErrTimeout
	}
	return err
}

// --- 实现 network.Reader ---

func (c *Conn) Len() int {
	return c.Reader().Len()
}

func (c *Conn) Peek(n int) (b []byte, err error) {
	b, err = c.Reader().Peek(n)
	err = normalizeErr(err)
	return
}

func (c *Conn) Skip(n int) error {
	return c.Reader().Skip(n)
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Connection.Read(p)
	err = normalizeErr(err)
	return n, err
}

func (c *Conn) Release() error {
	return c.Reader().Release()
}

// --- 实现 network.Writer ---

func (c *Conn) WriteBinary(b []byte) (n int, err error) {
	return c.Writer().WriteBinary(b)
}

func (c *Conn) Flush() error {
	return c.ToFerryError(c.Writer().Flush())
}

func (c *Conn) SetReadTimeout(t time.Duration) error {
	return c.Connection.SetReadTimeout(t)
}

func (c *Conn) SetWriteTimeout(t time.Duration) error {
	return c.Connection.SetWriteTimeout(t)
}

func normalizeErr(err error) error {
	if errors.Is(err, netpoll.ErrEOF) {
		return io.EOF
	}
	return err
}

// 将 netpoll 连接包装为 network.Conn
func newConn(c netpoll.Connection) *Conn {
	return &Conn{Connection: c}
}
