package buffer

import (
	"errors"
	"io"
)

// Reader 是 Overflowable 的只读视图，不论内容在内存还是临时文件，读法一致。
type Reader struct {
	b   *Overflowable
	pos int64
}

var (
	_ io.ReadSeeker = (*Reader)(nil)
	_ io.ReaderAt   = (*Reader)(nil)
)

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.b.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	return r.b.ReadAt(p, off)
}

// Len 返回内容总长度。
func (r *Reader) Len() int64 {
	return r.b.Len()
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.b.Len() + offset
	default:
		return 0, errors.New("buffer.Reader.Seek: 无效的 whence")
	}
	if abs < 0 {
		return 0, errors.New("buffer.Reader.Seek: 负数位置")
	}
	r.pos = abs
	return abs, nil
}

// Close 关闭底层缓冲区。
func (r *Reader) Close() error {
	return r.b.Close()
}
