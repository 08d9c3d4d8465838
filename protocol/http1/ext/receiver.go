// Package ext 实现请求体的增量接收器：定长与分块。
package ext

import (
	"bytes"

	"github.com/favbox/ferry/common/buffer"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/internal/bytesconv"
)

const (
	maxControlLine = 4096
	maxTrailer     = 64 << 10
)

// Receiver 增量消费请求体字节并写入自有的缓冲区。
//
// Completed 与 Err 二者至多一个为真，完成后 Received 恒返回 0。
type Receiver interface {
	// Received 返回实际消费的字节数，可能小于 len(data)。
	Received(data []byte) int
	Completed() bool
	Err() error
	// Len 是已写入缓冲区的正文字节数。
	Len() int64
	Buffer() *buffer.Overflowable
}

var (
	_ Receiver = (*FixedStreamReceiver)(nil)
	_ Receiver = (*ChunkedReceiver)(nil)
)

// FixedStreamReceiver 接收已知长度的请求体。
type FixedStreamReceiver struct {
	remain    int64
	buf       *buffer.Overflowable
	completed bool
	err       error
}

func NewFixedStreamReceiver(contentLength int64, buf *buffer.Overflowable) *FixedStreamReceiver {
	return &FixedStreamReceiver{remain: contentLength, buf: buf}
}

func (r *FixedStreamReceiver) Received(data []byte) int {
	if r.completed || r.err != nil {
		return 0
	}
	if r.remain < 1 {
		r.completed = true
		return 0
	}
	n := int64(len(data))
	if n > r.remain {
		n = r.remain
	}
	if err := r.buf.Append(data[:n]); err != nil {
		r.err = errs.NewInternalServerError(err, "无法缓存请求体")
		return 0
	}
	r.remain -= n
	if r.remain == 0 {
		r.completed = true
	}
	return int(n)
}

// Remain 返回尚未收到的字节数。
func (r *FixedStreamReceiver) Remain() int64                { return r.remain }
func (r *FixedStreamReceiver) Completed() bool              { return r.completed }
func (r *FixedStreamReceiver) Err() error                   { return r.err }
func (r *FixedStreamReceiver) Buffer() *buffer.Overflowable { return r.buf }
func (r *FixedStreamReceiver) Len() int64                   { return r.buf.Len() }

// ChunkedReceiver 解码 Transfer-Encoding: chunked 的请求体。
//
// 分块大小非法时记录错误并停止消费，不会当作结束块处理。
type ChunkedReceiver struct {
	chunkRemainder    int64
	controlLine       []byte
	allChunksReceived bool
	trailer           []byte
	completed         bool
	err               error
	buf               *buffer.Overflowable
}

func NewChunkedReceiver(buf *buffer.Overflowable) *ChunkedReceiver {
	return &ChunkedReceiver{buf: buf}
}

func (r *ChunkedReceiver) Received(data []byte) int {
	if r.completed || r.err != nil {
		return 0
	}
	orig := len(data)
	s := data
	for len(s) > 0 {
		switch {
		case r.chunkRemainder > 0:
			n := int64(len(s))
			if n > r.chunkRemainder {
				n = r.chunkRemainder
			}
			if err := r.buf.Append(s[:n]); err != nil {
				r.err = errs.NewInternalServerError(err, "无法缓存请求体")
				return orig - len(s)
			}
			r.chunkRemainder -= n
			s = s[n:]

		case !r.allChunksReceived:
			pos := bytes.IndexByte(s, '\n')
			if pos < 0 {
				if len(r.controlLine)+len(s) > maxControlLine {
					r.err = errs.NewBadRequest(errs.ErrBadChunk, "Chunk control line too long")
					return orig - len(s)
				}
				r.controlLine = append(r.controlLine, s...)
				s = s[len(s):]
				continue
			}
			line := append(r.controlLine, s[:pos]...)
			r.controlLine = nil
			s = s[pos+1:]
			if len(line) > maxControlLine {
				r.err = errs.NewBadRequest(errs.ErrBadChunk, "Chunk control line too long")
				return orig - len(s)
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				// 分块之间的 CRLF
				continue
			}
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = bytes.TrimSpace(line[:semi])
			}
			size, err := bytesconv.ParseHex(line)
			if err != nil {
				r.err = errs.NewBadRequest(errs.ErrBadChunkSize, "Invalid chunk size")
				return orig - len(s)
			}
			if size > 0 {
				r.chunkRemainder = size
			} else {
				r.allChunksReceived = true
			}

		default:
			// 尾部：已缓存的 trailer 字节加上本次输入
			prev := len(r.trailer)
			trailer := append(r.trailer, s...)
			switch {
			case bytes.HasPrefix(trailer, crlf):
				r.completed = true
				return orig - len(s) + (2 - prev)
			case bytes.HasPrefix(trailer, lf):
				r.completed = true
				return orig - len(s) + (1 - prev)
			}
			pos := FindDoubleNewline(trailer)
			if pos < 0 {
				if len(trailer) > maxTrailer {
					r.err = errs.NewBadRequest(errs.ErrBadChunk, "Chunk trailer too long")
					return orig - len(s)
				}
				r.trailer = trailer
				s = s[len(s):]
				continue
			}
			r.completed = true
			r.trailer = trailer[:pos]
			return orig - len(s) + (pos - prev)
		}
	}
	return orig
}

func (r *ChunkedReceiver) Completed() bool              { return r.completed }
func (r *ChunkedReceiver) Err() error                   { return r.err }
func (r *ChunkedReceiver) Buffer() *buffer.Overflowable { return r.buf }
func (r *ChunkedReceiver) Len() int64                   { return r.buf.Len() }

// Trailer 返回收到的尾部标头原文（不含结束空行的剩余部分）。
func (r *ChunkedReceiver) Trailer() []byte { return r.trailer }
