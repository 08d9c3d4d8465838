package resp

import (
	"io"

	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/internal/bytesconv"
	"github.com/favbox/ferry/protocol/consts"
)

// BodyWriter 按 Framing 写出正文。
type BodyWriter struct {
	w       io.Writer
	f       Framing
	written int64
	warned  bool
	scratch []byte
}

func NewBodyWriter(w io.Writer, f Framing) *BodyWriter {
	return &BodyWriter{w: w, f: f}
}

// Write 写出 p。超出 Content-Length 的字节被丢弃，并只告警一次。
func (b *BodyWriter) Write(p []byte) (int, error) {
	n := len(p)
	if !b.f.SendBody || n == 0 {
		return n, nil
	}

	switch {
	case b.f.Chunked:
		b.scratch = bytesconv.AppendHex(b.scratch[:0], int64(n))
		b.scratch = append(b.scratch, consts.StrCRLF...)
		if _, err := b.w.Write(b.scratch); err != nil {
			return 0, err
		}
		if _, err := b.w.Write(p); err != nil {
			return 0, err
		}
		if _, err := b.w.Write(consts.StrCRLF); err != nil {
			return 0, err
		}
	case b.f.ContentLength >= 0:
		remain := b.f.ContentLength - b.written
		if int64(len(p)) > remain {
			if !b.warned {
				flog.SystemLogger().Warnf("应用写出的字节超过 Content-Length %d，多余部分已丢弃", b.f.ContentLength)
				b.warned = true
			}
			p = p[:remain]
		}
		if len(p) > 0 {
			if _, err := b.w.Write(p); err != nil {
				return 0, err
			}
		}
	default:
		if _, err := b.w.Write(p); err != nil {
			return 0, err
		}
	}
	b.written += int64(len(p))
	return n, nil
}

// Close 结束正文。分块编码时写出结束块。
func (b *BodyWriter) Close() error {
	if b.f.Chunked && b.f.SendBody {
		_, err := b.w.Write(consts.StrChunkTerminal)
		return err
	}
	return nil
}

// Short 报告定长正文是否未写满 Content-Length，此时连接须关闭。
func (b *BodyWriter) Short() bool {
	return b.f.SendBody && b.f.ContentLength >= 0 && b.written < b.f.ContentLength
}

// Written 返回实际写出的正文字节数，不含分块编码。
func (b *BodyWriter) Written() int64 {
	return b.written
}
