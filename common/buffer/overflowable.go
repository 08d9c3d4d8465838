// Package buffer 提供先驻留内存、超过阈值后自动落盘的字节累加器。
package buffer

import (
	"io"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/internal/stats"
	"github.com/spf13/afero"
)

const tempPattern = "ferry-buf-"

// Overflowable 在内存中累加字节，总长达到 overflow 后改用临时文件承载。
//
// 逻辑内容为 [off, size)。非并发安全，由持有者串行使用。
type Overflowable struct {
	fs       afero.Fs
	overflow int64

	mem  []byte
	file afero.File
	size int64 // 已写入的总字节数（相对当前承载体）
	off  int64 // 已消费的字节数

	closed bool
}

// New 创建阈值为 overflow 的缓冲区。fs 为空时使用操作系统文件系统。
func New(fs afero.Fs, overflow int64) *Overflowable {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Overflowable{fs: fs, overflow: overflow}
}

// Len 返回尚未消费的字节数。
func (b *Overflowable) Len() int64 {
	return b.size - b.off
}

// Overflowed 报告是否已落盘。
func (b *Overflowable) Overflowed() bool {
	return b.file != nil
}

// Append 追加 p。
func (b *Overflowable) Append(p []byte) error {
	if b.closed {
		return errs.ErrBufferClosed
	}
	if len(p) == 0 {
		return nil
	}
	if b.file != nil {
		if _, err := b.file.WriteAt(p, b.size); err != nil {
			return err
		}
		b.size += int64(len(p))
		return nil
	}
	b.mem = append(b.mem, p...)
	b.size += int64(len(p))
	if b.Len() >= b.overflow {
		return b.spill()
	}
	return nil
}

// Write 实现 io.Writer。
func (b *Overflowable) Write(p []byte) (int, error) {
	if err := b.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString 实现 io.StringWriter。
func (b *Overflowable) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// 将未消费的内存数据转存到新的临时文件。
func (b *Overflowable) spill() error {
	f, err := afero.TempFile(b.fs, "", tempPattern)
	if err != nil {
		return err
	}
	rest := b.mem[b.off:]
	if _, err = f.WriteAt(rest, 0); err != nil {
		_ = f.Close()
		_ = b.fs.Remove(f.Name())
		return err
	}
	b.file = f
	b.mem = nil
	b.size, b.off = int64(len(rest)), 0
	stats.BufferOverflowedTotal.Inc()
	return nil
}

// ReadAt 从逻辑内容的 pos 处读取，不移动消费位置。
func (b *Overflowable) ReadAt(p []byte, pos int64) (int, error) {
	if b.closed {
		return 0, errs.ErrBufferClosed
	}
	if pos >= b.Len() {
		return 0, io.EOF
	}
	n := int64(len(p))
	if rest := b.Len() - pos; n > rest {
		n = rest
	}
	if b.file == nil {
		start := b.off + pos
		copy(p, b.mem[start:start+n])
		return int(n), nil
	}
	m, err := b.file.ReadAt(p[:n], b.off+pos)
	if err == io.EOF && int64(m) == n {
		err = nil
	}
	return m, err
}

// Get 取出至多 n 个字节的副本，n < 0 表示全部。skip 为真时同时消费这些字节。
func (b *Overflowable) Get(n int, skip bool) ([]byte, error) {
	if n < 0 || int64(n) > b.Len() {
		n = int(b.Len())
	}
	if n == 0 {
		return nil, nil
	}
	p := make([]byte, n)
	m, err := b.ReadAt(p, 0)
	if err != nil {
		return nil, err
	}
	p = p[:m]
	if skip {
		b.off += int64(m)
	}
	return p, nil
}

// Skip 消费 n 个字节。
func (b *Overflowable) Skip(n int) error {
	if int64(n) > b.Len() {
		return errs.NewPrivate("缓冲区的现有长度不足以跳过指定字节数")
	}
	b.off += int64(n)
	return nil
}

// Prune 丢弃已消费的数据。剩余数据小于阈值时回到内存承载。
func (b *Overflowable) Prune() error {
	if b.off == 0 {
		return nil
	}
	if b.file == nil {
		n := copy(b.mem, b.mem[b.off:])
		b.mem = b.mem[:n]
		b.size, b.off = int64(n), 0
		return nil
	}

	rest, err := b.Get(-1, false)
	if err != nil {
		return err
	}
	if err = b.removeFile(); err != nil {
		return err
	}
	b.mem, b.size, b.off = nil, 0, 0
	return b.Append(rest)
}

// Reader 返回从当前消费位置开始的独立读取视图，读取不会消费缓冲区。
func (b *Overflowable) Reader() *Reader {
	return &Reader{b: b}
}

// Close 释放内存并删除临时文件。可重复调用。
func (b *Overflowable) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.mem = nil
	return b.removeFile()
}

func (b *Overflowable) removeFile() error {
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	if rmErr := b.fs.Remove(name); err == nil {
		err = rmErr
	}
	b.file = nil
	return err
}
