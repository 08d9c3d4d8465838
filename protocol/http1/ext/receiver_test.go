package ext

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/favbox/ferry/common/buffer"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func newBuf() *buffer.Overflowable {
	return buffer.New(afero.NewMemMapFs(), 1<<10)
}

func bufString(t *testing.T, b *buffer.Overflowable) string {
	got, err := io.ReadAll(b.Reader())
	assert.Nil(t, err)
	return string(got)
}

func TestFixedStreamReceiverChunkSizeInvariance(t *testing.T) {
	body := "hello, ferry"
	input := body + "GET /next"

	whole := NewFixedStreamReceiver(int64(len(body)), newBuf())
	assert.Equal(t, len(body), whole.Received([]byte(input)))
	assert.True(t, whole.Completed())

	single := NewFixedStreamReceiver(int64(len(body)), newBuf())
	consumed := 0
	for i := 0; i < len(input); i++ {
		consumed += single.Received([]byte{input[i]})
	}
	assert.Equal(t, len(body), consumed)
	assert.True(t, single.Completed())
	assert.Equal(t, bufString(t, whole.Buffer()), bufString(t, single.Buffer()))
	assert.Equal(t, body, bufString(t, single.Buffer()))
	assert.Equal(t, 0, single.Received([]byte("more")))
}

func TestFixedStreamReceiverZeroLength(t *testing.T) {
	r := NewFixedStreamReceiver(0, newBuf())
	assert.False(t, r.Completed())
	assert.Equal(t, 0, r.Received([]byte("abc")))
	assert.True(t, r.Completed())
	assert.Nil(t, r.Err())
	assert.Equal(t, int64(0), r.Len())
}

func TestFixedStreamReceiverPartial(t *testing.T) {
	r := NewFixedStreamReceiver(10, newBuf())
	assert.Equal(t, 4, r.Received([]byte("abcd")))
	assert.False(t, r.Completed())
	assert.Equal(t, int64(6), r.Remain())
	assert.Equal(t, 0, r.Received(nil))
	assert.Equal(t, 6, r.Received([]byte("efghijkl")))
	assert.True(t, r.Completed())
}

func TestChunkedReceiver(t *testing.T) {
	input := "5\r\nhello\r\n0\r\n\r\n"
	r := NewChunkedReceiver(newBuf())
	assert.Equal(t, len(input), r.Received([]byte(input)))
	assert.True(t, r.Completed())
	assert.Nil(t, r.Err())
	assert.Equal(t, int64(5), r.Len())
	assert.Equal(t, "hello", bufString(t, r.Buffer()))
}

func TestChunkedReceiverByteAtATime(t *testing.T) {
	input := "4;name=v\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\nX-Trailer: 1\r\n\r\n"
	r := NewChunkedReceiver(newBuf())
	consumed := 0
	for i := 0; i < len(input); i++ {
		consumed += r.Received([]byte{input[i]})
	}
	assert.Equal(t, len(input), consumed)
	assert.True(t, r.Completed())
	assert.Equal(t, "Wikipedia in\r\n\r\nchunks.", bufString(t, r.Buffer()))
	assert.Equal(t, "X-Trailer: 1\r\n\r\n", string(r.Trailer()))
}

func TestChunkedReceiverLeavesPipelinedBytes(t *testing.T) {
	input := "3\r\nabc\r\n0\r\n\r\nGET / HTTP/1.1\r\n"
	r := NewChunkedReceiver(newBuf())
	n := r.Received([]byte(input))
	assert.Equal(t, strings.Index(input, "GET"), n)
	assert.True(t, r.Completed())

	lf := NewChunkedReceiver(newBuf())
	n = lf.Received([]byte("1\na\n0\n\nrest"))
	assert.Equal(t, 7, n)
	assert.True(t, lf.Completed())
	assert.Equal(t, "a", bufString(t, lf.Buffer()))
}

func TestChunkedReceiverBadSize(t *testing.T) {
	for _, input := range []string{"zz\r\n", "0x5\r\nhello\r\n", "-1\r\n", "1000000000000000\r\n"} {
		r := NewChunkedReceiver(newBuf())
		r.Received([]byte(input))
		assert.NotNil(t, r.Err(), input)
		assert.False(t, r.Completed(), input)
		assert.True(t, errors.Is(r.Err(), errs.ErrBadChunkSize), input)

		he, ok := errs.AsHTTPError(r.Err())
		assert.True(t, ok)
		assert.Equal(t, 400, he.Code)
		assert.Equal(t, 0, r.Received([]byte("0\r\n\r\n")))
	}
}

func TestChunkedReceiverControlLineTooLong(t *testing.T) {
	r := NewChunkedReceiver(newBuf())
	r.Received([]byte(strings.Repeat("1", maxControlLine+1)))
	assert.True(t, errors.Is(r.Err(), errs.ErrBadChunk))
}

func TestFindDoubleNewline(t *testing.T) {
	assert.Equal(t, -1, FindDoubleNewline([]byte("GET / HTTP/1.0\r\n")))
	assert.Equal(t, 5, FindDoubleNewline([]byte("a\r\n\r\nb")))
	assert.Equal(t, 3, FindDoubleNewline([]byte("a\n\nb")))
	assert.Equal(t, 3, FindDoubleNewline([]byte("a\n\n\r\nb")))
}

func TestBufferSnippet(t *testing.T) {
	assert.Equal(t, `"short"`, BufferSnippet([]byte("short")))
	long := strings.Repeat("a", 20) + "middle" + strings.Repeat("b", 20)
	assert.Equal(t, `"aaaaaaaaaaaaaaaaaaaa"..."bbbbbbbbbbbbbbbbbbbb"`, BufferSnippet([]byte(long)))
}
