package ext

import (
	"bytes"
	"fmt"
)

var (
	crlf = []byte("\r\n")
	lf   = []byte("\n")
)

// FindDoubleNewline 返回首个空行（"\n\r\n" 或 "\n\n"）结束后的下标，找不到返回 -1。
func FindDoubleNewline(b []byte) int {
	pos := -1
	if i := bytes.Index(b, []byte("\n\r\n")); i >= 0 {
		pos = i + 3
	}
	if i := bytes.Index(b, []byte("\n\n")); i >= 0 && (pos < 0 || i+2 < pos) {
		pos = i + 2
	}
	return pos
}

// BufferSnippet 返回字节切片的片段，用于日志。
//
// 形如: <前 20 字节>...<后 20 字节>
func BufferSnippet(b []byte) string {
	n := len(b)
	start := 20
	end := n - start
	if start >= end {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%q...%q", b[:start], b[end:])
}
