package standard

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/network"
)

const maxConsecutiveEmptyReads = 100 // 最大连续空读取次数

var (
	_ network.Conn               = (*Conn)(nil)
	_ network.ErrorNormalization = (*Conn)(nil)
)

// Conn 实现基于 net 的网络连接。
//
// 输入与输出各使用一段连续的 mcache 缓冲区，读写只允许在同一协程中进行。
type Conn struct {
	c       net.Conn
	in      []byte // in[r:] 为未读数据
	r       int
	out     []byte
	size    int // 单次读取的最小缓冲大小
	readTO  time.Duration
	writeTO time.Duration

	err error
}

// --- 实现 network.ErrorNormalization ---

func (c *Conn) ToFerryError(err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) {
		return errs.ErrConnectionClosed
	}

	// 统一超时错误
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.ErrTimeout
	}
	return err
}

// --- 实现 net.Conn ---

func (c *Conn) Read(b []byte) (n int, err error) {
	if c.Len() == 0 {
		if err = c.fill(1); err != nil && c.Len() == 0 {
			return 0, err
		}
	}
	n = copy(b, c.in[c.r:])
	c.r += n
	return n, nil
}

// Write 先冲刷缓冲的数据，再直接写出 b。
func (c *Conn) Write(b []byte) (n int, err error) {
	if err = c.Flush(); err != nil {
		return 0, err
	}
	return c.c.Write(b)
}

func (c *Conn) Close() error {
	return c.c.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.c.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.c.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.c.SetWriteDeadline(t)
}

// --- 实现 network.Reader ---

// Len 输入缓冲区的可读字节数
func (c *Conn) Len() int {
	return len(c.in) - c.r
}

// Peek 返回接下来的 n 个字节，而不移动读指针。
//
// 连接出错时返回已缓冲的部分以及该错误。
func (c *Conn) Peek(n int) ([]byte, error) {
	err := c.fill(n)
	if c.Len() < n {
		if err == nil {
			err = c.readErr()
		}
		return c.in[c.r:], err
	}
	return c.in[c.r : c.r+n], nil
}

func (c *Conn) Skip(n int) error {
	if c.Len() < n {
		return errs.Newf(errs.ErrorTypePrivate, nil, "缓冲区的现有长度不足以跳过 %d 个字节", n)
	}
	c.r += n
	return nil
}

// Release 丢弃已读部分。缓冲区读空且过大时归还给 mcache。
func (c *Conn) Release() error {
	if c.Len() > 0 {
		if c.r > 0 {
			m := copy(c.in, c.in[c.r:])
			c.in, c.r = c.in[:m], 0
		}
		return nil
	}
	if cap(c.in) > block64k {
		free(c.in)
		c.in = malloc(0, c.size)
	}
	c.in, c.r = c.in[:0], 0
	return nil
}

// --- 实现 network.Writer ---

func (c *Conn) WriteBinary(b []byte) (n int, err error) {
	c.out = grow(c.out, len(b))
	c.out = append(c.out, b...)
	return len(b), nil
}

func (c *Conn) Flush() error {
	if len(c.out) == 0 {
		return nil
	}
	if c.writeTO > 0 {
		_ = c.c.SetWriteDeadline(time.Now().Add(c.writeTO))
	}
	_, err := c.c.Write(c.out)
	if cap(c.out) > block64k {
		free(c.out)
		c.out = nil
	} else {
		c.out = c.out[:0]
	}
	return c.ToFerryError(err)
}

func (c *Conn) SetReadTimeout(t time.Duration) error {
	c.readTO = t
	return nil
}

func (c *Conn) SetWriteTimeout(t time.Duration) error {
	c.writeTO = t
	return nil
}

// 循环读取，直到缓冲区至少有 n 个字节。
func (c *Conn) fill(n int) error {
	if c.Len() >= n {
		return nil
	}
	// 检查连接先前是否已返回错误
	if c.err != nil {
		return c.readErr()
	}
	if c.r > 0 {
		m := copy(c.in, c.in[c.r:])
		c.in, c.r = c.in[:m], 0
	}
	c.in = grow(c.in, max(n-len(c.in), c.size))

	if c.readTO > 0 {
		_ = c.c.SetReadDeadline(time.Now().Add(c.readTO))
	}
	empty := 0
	for len(c.in) < n {
		m, err := c.c.Read(c.in[len(c.in):cap(c.in)])
		c.in = c.in[:len(c.in)+m]
		if err != nil {
			if len(c.in) >= n {
				c.err = err
				return nil
			}
			return c.ToFerryError(err)
		}
		if m == 0 {
			if empty++; empty >= maxConsecutiveEmptyReads {
				return io.ErrNoProgress
			}
		}
	}
	return nil
}

func (c *Conn) readErr() error {
	err := c.err
	c.err = nil
	return c.ToFerryError(err)
}

// 归还缓冲区，之后不可再使用该连接。
func (c *Conn) recycle() {
	free(c.in)
	free(c.out)
	c.in, c.out, c.r = nil, nil, 0
}

func newConn(c net.Conn, size int) *Conn {
	if size <= 0 {
		size = defaultMallocSize
	}
	return &Conn{
		c:    c,
		in:   malloc(0, size),
		size: size,
	}
}
