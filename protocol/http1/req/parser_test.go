package req

import (
	"errors"
	"io"
	"strings"
	"testing"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func testLimits() Limits {
	return Limits{
		MaxHeaderSize: 1 << 10,
		MaxBodySize:   1 << 10,
		InbufOverflow: 64,
		TempFs:        afero.NewMemMapFs(),
	}
}

// 像 Channel 一样反复喂入，直到完成或不再消费。
func feed(p *Parser, data string) int {
	b := []byte(data)
	consumed := 0
	for len(b) > 0 && !p.Completed() {
		n := p.Received(b)
		if n == 0 {
			break
		}
		consumed += n
		b = b[n:]
	}
	return consumed
}

func TestParserSimpleGet(t *testing.T) {
	p := NewParser(testLimits())
	raw := "GET /x?y=1#frag HTTP/1.1\r\nHost: h\r\n\r\n"
	assert.Equal(t, len(raw), feed(p, raw))
	assert.True(t, p.Completed())
	assert.Equal(t, StateCompleted, p.State())

	out := p.Outcome()
	assert.Nil(t, out.Err)
	assert.False(t, out.Close)
	assert.Equal(t, "GET", out.Request.Method)
	assert.Equal(t, "/x", out.Request.Path)
	assert.Equal(t, "y=1", out.Request.Query)
	assert.Equal(t, "frag", out.Request.Fragment)
	assert.Equal(t, "1.1", out.Request.Version)
	assert.Equal(t, "h", out.Request.Headers["HOST"])
	assert.Equal(t, int64(0), out.Request.ContentLength())
}

func TestParserIncrementalHeaders(t *testing.T) {
	p := NewParser(testLimits())
	raw := "POST /submit HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloGET"
	total := 0
	for i := 0; i < len(raw) && !p.Completed(); i++ {
		total += p.Received([]byte{raw[i]})
		if i == strings.Index(raw, "\r\n\r\n")+3 {
			assert.Equal(t, StateAwaitingBody, p.State())
		}
	}
	assert.Equal(t, len(raw)-3, total)
	out := p.Outcome()
	body, _ := io.ReadAll(out.Request.Body)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), out.Request.ContentLength())
	assert.Equal(t, 0, feed(p, "GET"))
}

func TestParserBoundaryInsideChunk(t *testing.T) {
	p := NewParser(testLimits())
	assert.Equal(t, 18, feed(p, "PUT / HTTP/1.1\r\nCo"))
	// 单次调用在标头块结束处返回
	n := p.Received([]byte("ntent-Length: 3\r\n\r\nabcdef"))
	assert.Equal(t, len("ntent-Length: 3\r\n\r\n"), n)
	assert.False(t, p.Completed())
	assert.Equal(t, 3, feed(p, "abcdef"))
	assert.True(t, p.Completed())
}

func TestParserDuplicateHeaders(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "GET / HTTP/1.1\r\nFoo: a\r\nFoo: b\r\n\r\n")
	out := p.Outcome()
	assert.Equal(t, "a, b", out.Request.Headers["FOO"])
}

func TestParserUnderscoreHeaderDropped(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "GET / HTTP/1.1\r\nX_Foo: 1\r\nX-Bar: 2\r\n\r\n")
	out := p.Outcome()
	_, ok := out.Request.Headers["X_FOO"]
	assert.False(t, ok)
	assert.Equal(t, "2", out.Request.Headers["X_BAR"])
	assert.Len(t, out.Request.Headers, 1)
}

func TestParserFoldedHeaders(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "GET / HTTP/1.1\r\nX-Long: part1\r\n\tpart2\r\n\r\n")
	out := p.Outcome()
	assert.Nil(t, out.Err)
	assert.Equal(t, "part1\tpart2", out.Request.Headers["X_LONG"])
}

func TestParserMalformedContinuation(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "GET / HTTP/1.1\r\n continued\r\n\r\n")
	assert.True(t, p.Completed())
	out := p.Outcome()
	assert.NotNil(t, out.Err)
	assert.Equal(t, 400, out.Err.Code)
	assert.True(t, errors.Is(out.Err, errs.ErrMalformedHeader))
	assert.True(t, out.Close)
	assert.Equal(t, "GET", out.Request.Method)
	assert.Equal(t, "/", out.Request.Path)
	assert.Equal(t, "1.0", out.Request.Version)
}

func TestParserBadRequestLine(t *testing.T) {
	for _, raw := range []string{
		"get / HTTP/1.1\r\n\r\n",
		"GET\r\n\r\n",
		"GET /a /b HTTP/1.1\r\n\r\n",
		"Bad Name: x\r\n\r\n",
	} {
		p := NewParser(testLimits())
		feed(p, raw)
		assert.True(t, p.Completed(), raw)
		assert.Equal(t, StateErrored, p.State(), raw)
		assert.Equal(t, 400, p.Err().Code, raw)
	}
}

func TestParserBodyTooLargeDeclared(t *testing.T) {
	p := NewParser(testLimits())
	raw := "POST / HTTP/1.1\r\nContent-Length: 1024\r\n\r\n"
	assert.Equal(t, len(raw), feed(p, raw+"x"))
	assert.True(t, p.Completed())
	out := p.Outcome()
	assert.Equal(t, 413, out.Err.Code)
	assert.True(t, errors.Is(out.Err, errs.ErrBodyTooLarge))
	assert.True(t, out.Close)
}

func TestParserBodyTooLargeChunked(t *testing.T) {
	limits := testLimits()
	limits.MaxBodySize = 8
	p := NewParser(limits)
	feed(p, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n")
	assert.False(t, p.Completed())
	feed(p, "10\r\n0123456789abcdef\r\n0\r\n\r\n")
	assert.True(t, p.Completed())
	assert.Equal(t, 413, p.Err().Code)
}

func TestParserHeaderTooLarge(t *testing.T) {
	limits := testLimits()
	limits.MaxHeaderSize = 32
	p := NewParser(limits)
	feed(p, "GET / HTTP/1.1\r\n")
	assert.False(t, p.Completed())
	feed(p, "X-Filler: "+strings.Repeat("a", 32))
	assert.True(t, p.Completed())

	out := p.Outcome()
	assert.Equal(t, 431, out.Err.Code)
	assert.Equal(t, "GET", out.Request.Method)
	assert.Equal(t, "/", out.Request.Path)
	assert.Equal(t, "1.0", out.Request.Version)
	assert.True(t, out.Close)
}

func TestParserChunkedBody(t *testing.T) {
	p := NewParser(testLimits())
	raw := "POST /c HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	assert.Equal(t, len(raw), feed(p, raw))
	out := p.Outcome()
	assert.Nil(t, out.Err)
	assert.Equal(t, "11", out.Request.Headers["CONTENT_LENGTH"])
	_, ok := out.Request.Headers["TRANSFER_ENCODING"]
	assert.False(t, ok)
	body, _ := io.ReadAll(out.Request.Body)
	assert.Equal(t, "hello world", string(body))
	assert.Nil(t, p.Close())
}

func TestParserBadChunk(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n")
	assert.True(t, p.Completed())
	assert.Equal(t, 400, p.Err().Code)
	assert.True(t, errors.Is(p.Err(), errs.ErrBadChunkSize))
}

func TestParserUnsupportedTransferEncoding(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n")
	assert.Equal(t, 501, p.Err().Code)
}

func TestParserEmptyRequest(t *testing.T) {
	p := NewParser(testLimits())
	assert.Equal(t, 4, feed(p, "\r\n\r\nGET"))
	assert.True(t, p.Completed())
	assert.True(t, p.Outcome().Empty)

	p = NewParser(testLimits())
	raw := "\r\nGET / HTTP/1.1\r\n\r\n"
	assert.Equal(t, len(raw), feed(p, raw))
	assert.False(t, p.Outcome().Empty)
	assert.Equal(t, "/", p.Outcome().Request.Path)
}

func TestParserConnectionDirectives(t *testing.T) {
	cases := []struct {
		raw   string
		close bool
	}{
		{"GET / HTTP/1.0\r\n\r\n", true},
		{"GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n", false},
		{"GET / HTTP/1.1\r\n\r\n", false},
		{"GET / HTTP/1.1\r\nConnection: close\r\n\r\n", true},
		{"GET /\r\n\r\n", true},
	}
	for _, c := range cases {
		p := NewParser(testLimits())
		feed(p, c.raw)
		assert.Equal(t, c.close, p.Outcome().Close, c.raw)
	}
}

func TestParserExpectContinue(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "PUT / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")
	assert.True(t, p.HeadersFinished())
	assert.True(t, p.ExpectContinue())
	assert.False(t, p.Completed())
	feed(p, "ok")
	assert.True(t, p.Completed())
}

func TestParserContentLengthInvalid(t *testing.T) {
	for _, v := range []string{"abc", "-5", ""} {
		p := NewParser(testLimits())
		feed(p, "POST / HTTP/1.1\r\nContent-Length: "+v+"\r\n\r\n")
		assert.True(t, p.Completed(), v)
		assert.Nil(t, p.Err(), v)
	}
}

func TestParserAbsoluteURI(t *testing.T) {
	p := NewParser(testLimits())
	feed(p, "GET http://example.com:8080/a%20b?q=1 HTTP/1.1\r\n\r\n")
	out := p.Outcome()
	assert.Nil(t, out.Err)
	assert.Equal(t, "http", out.Request.ProxyScheme)
	assert.Equal(t, "example.com:8080", out.Request.ProxyNetloc)
	assert.Equal(t, "/a b", out.Request.Path)
	assert.Equal(t, "q=1", out.Request.Query)
}

func TestSplitURI(t *testing.T) {
	cases := []struct {
		in   string
		want uriParts
	}{
		{"/", uriParts{path: "/"}},
		{"//double/slash?x#y", uriParts{path: "//double/slash", query: "x", fragment: "y"}},
		{"https://h/p", uriParts{scheme: "https", netloc: "h", path: "/p"}},
		{"/p?a=http://x", uriParts{path: "/p", query: "a=http://x"}},
		{"*", uriParts{path: "*"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, splitURI(c.in), c.in)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AwaitingHeaders", StateAwaitingHeaders.String())
	assert.Equal(t, "State(9)", State(9).String())
}
