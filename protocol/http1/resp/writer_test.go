package resp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyWriterChunked(t *testing.T) {
	var out bytes.Buffer
	w := NewBodyWriter(&out, Framing{SendBody: true, Chunked: true, ContentLength: -1})
	_, _ = w.Write([]byte("hello"))
	_, _ = w.Write(nil)
	_, _ = w.Write([]byte("0123456789abcdefg"))
	assert.Nil(t, w.Close())
	assert.Equal(t, "5\r\nhello\r\n11\r\n0123456789abcdefg\r\n0\r\n\r\n", out.String())
	assert.Equal(t, int64(22), w.Written())
}

func TestBodyWriterTruncate(t *testing.T) {
	var out bytes.Buffer
	w := NewBodyWriter(&out, Framing{SendBody: true, ContentLength: 3})
	n, err := w.Write([]byte("ab"))
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, w.Short())
	n, err = w.Write([]byte("cdef"))
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	_, _ = w.Write([]byte("gh"))
	assert.Equal(t, "abc", out.String())
	assert.False(t, w.Short())
}

func TestBodyWriterDiscard(t *testing.T) {
	var out bytes.Buffer
	w := NewBodyWriter(&out, Framing{Chunked: true, ContentLength: -1})
	_, _ = w.Write([]byte("ignored"))
	assert.Nil(t, w.Close())
	assert.Equal(t, 0, out.Len())
}
