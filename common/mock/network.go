// Package mock 提供内存中的 network.Conn，用于协议层测试。
package mock

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/network"
)

var ErrReadTimeout = errs.New(errs.ErrTimeout, errs.ErrorTypePublic, "read timeout")

var _ network.Conn = (*Conn)(nil)

// Conn 是内存中的连接。输入可分批追加，输出在 Flush 后记录。
//
// 设置 step 后每次最多暴露 step 个可读字节，用于模拟数据分片到达。
type Conn struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      []byte
	step    int
	eof     bool
	closed  bool
	pending []byte
	out     bytes.Buffer
	flushes int
	readTO  time.Duration
	remote  net.Addr
}

// NewConn 创建以 source 为输入的连接。输入读完后 Peek 阻塞，直到 Feed、CloseInput 或 Close。
func NewConn(source string) *Conn {
	c := &Conn{
		in:     []byte(source),
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// NewStepConn 创建每次只暴露 step 个字节的连接。
func NewStepConn(source string, step int) *Conn {
	c := NewConn(source)
	c.step = step
	return c
}

// SetRemoteAddr 替换对端地址。
func (m *Conn) SetRemoteAddr(addr net.Addr) {
	m.remote = addr
}

// Feed 追加输入。
func (m *Conn) Feed(data string) {
	m.mu.Lock()
	m.in = append(m.in, data...)
	m.mu.Unlock()
	m.cond.Broadcast()
}

// CloseInput 模拟对端半关闭：读完剩余输入后返回 io.EOF。
func (m *Conn) CloseInput() {
	m.mu.Lock()
	m.eof = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Output 返回已 Flush 的全部输出。
func (m *Conn) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

// Flushes 返回 Flush 的次数。
func (m *Conn) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Closed 报告连接是否已关闭。
func (m *Conn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// --- 实现 network.Reader ---

func (m *Conn) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible()
}

func (m *Conn) visible() int {
	if m.step > 0 && len(m.in) > m.step {
		return m.step
	}
	return len(m.in)
}

func (m *Conn) Peek(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deadline time.Time
	if m.readTO > 0 {
		deadline = time.Now().Add(m.readTO)
		timer := time.AfterFunc(m.readTO, m.cond.Broadcast)
		defer timer.Stop()
	}
	for len(m.in) < n {
		switch {
		case m.closed:
			return m.in, errs.ErrConnectionClosed
		case m.eof:
			return m.in, io.EOF
		case !deadline.IsZero() && !time.Now().Before(deadline):
			return m.in, ErrReadTimeout
		}
		m.cond.Wait()
	}
	return m.in[:n], nil
}

func (m *Conn) Skip(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.in) {
		return errs.NewPrivate("输入不足以跳过指定字节数")
	}
	m.in = m.in[n:]
	return nil
}

func (m *Conn) Release() error {
	return nil
}

// --- 实现 network.Writer ---

func (m *Conn) WriteBinary(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errs.ErrConnectionClosed
	}
	m.pending = append(m.pending, b...)
	return len(b), nil
}

func (m *Conn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errs.ErrConnectionClosed
	}
	m.out.Write(m.pending)
	m.pending = m.pending[:0]
	m.flushes++
	return nil
}

// --- 实现 net.Conn ---

func (m *Conn) Read(b []byte) (int, error) {
	if _, err := m.Peek(1); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(b, m.in[:m.visible()])
	m.in = m.in[n:]
	return n, nil
}

func (m *Conn) Write(b []byte) (int, error) {
	n, err := m.WriteBinary(b)
	if err != nil {
		return n, err
	}
	return n, m.Flush()
}

func (m *Conn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
	return nil
}

func (m *Conn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (m *Conn) RemoteAddr() net.Addr {
	return m.remote
}

func (m *Conn) SetDeadline(time.Time) error      { return nil }
func (m *Conn) SetReadDeadline(time.Time) error  { return nil }
func (m *Conn) SetWriteDeadline(time.Time) error { return nil }

func (m *Conn) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	m.readTO = t
	m.mu.Unlock()
	return nil
}

func (m *Conn) SetWriteTimeout(time.Duration) error {
	return nil
}

// BrokenConn 的读写都失败。
type BrokenConn struct {
	*Conn
}

func (c *BrokenConn) Peek(int) ([]byte, error) {
	return nil, io.ErrUnexpectedEOF
}

func (c *BrokenConn) Flush() error {
	return errs.ErrConnectionClosed
}

func NewBrokenConn(source string) *BrokenConn {
	return &BrokenConn{NewConn(source)}
}
