package protocol

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderKey(t *testing.T) {
	assert.Equal(t, "CONTENT_TYPE", HeaderKey("Content-Type"))
	assert.Equal(t, "X_FORWARDED_PROTO", HeaderKey("x-forwarded-proto"))
	assert.Equal(t, "HOST", HeaderKey("HOST"))
}

func TestRequestAccessors(t *testing.T) {
	req := &Request{Headers: map[string]string{
		"CONTENT_LENGTH": "12",
		"CONNECTION":     "Keep-Alive",
	}}
	assert.Equal(t, "12", req.Header("content-length"))
	assert.Equal(t, int64(12), req.ContentLength())
	assert.True(t, req.KeepAliveRequested())
	assert.False(t, req.CloseRequested())

	req.Body = NoBody
	assert.Equal(t, int64(0), req.ContentLength())

	req = &Request{Headers: map[string]string{"CONTENT_LENGTH": "abc"}, Body: strings.NewReader("x")}
	assert.Equal(t, int64(-1), req.ContentLength())
}

func TestResponseHeaders(t *testing.T) {
	resp := NewResponse(200)
	resp.AddHeader("Set-Cookie", "a=1").AddHeader("set-cookie", "b=2")
	assert.Len(t, resp.Header, 2)

	resp.SetHeader("SET-COOKIE", "c=3")
	assert.Equal(t, []HeaderField{{"SET-COOKIE", "c=3"}}, resp.Header)

	resp.SetBodyString("hello")
	v, ok := resp.HeaderValue("content-length")
	assert.True(t, ok)
	assert.Equal(t, "5", v)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(b))

	resp.SetBodyStream(strings.NewReader("stream"))
	_, ok = resp.HeaderValue("Content-Length")
	assert.False(t, ok)
}

func TestResponseStatus(t *testing.T) {
	assert.Equal(t, "200 OK", NewResponse(200).Status())
	assert.Equal(t, "404 Not Found", NewResponse(404).Status())
	resp := &Response{StatusCode: 299, Reason: "Custom"}
	assert.Equal(t, "299 Custom", resp.Status())
	assert.Equal(t, "599 Unknown Status Code", NewResponse(599).Status())
}

func TestNoBody(t *testing.T) {
	n, err := NoBody.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
