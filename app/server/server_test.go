package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func pathHandler(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(200).SetBodyString(req.Path), nil
}

func startServer(t *testing.T, opts ...config.Option) *Server {
	opts = append([]config.Option{
		WithHostPort("127.0.0.1", 0),
		WithTempFs(afero.NewMemMapFs()),
		WithThreads(2),
	}, opts...)
	s, err := New(pathHandler, opts...)
	assert.Nil(t, err)
	go func() { _ = s.Run() }()
	return s
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, path string) *http.Response {
	_, err := conn.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: x\r\n\r\n"))
	assert.Nil(t, err)
	resp, err := http.ReadResponse(r, nil)
	assert.Nil(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	b, err := io.ReadAll(resp.Body)
	assert.Nil(t, err)
	return string(b)
}

func TestServerKeepAlive(t *testing.T) {
	for _, transport := range []string{config.TransportStandard, config.TransportNetpoll} {
		t.Run(transport, func(t *testing.T) {
			s := startServer(t, WithNetwork(transport))

			conn, err := net.Dial("tcp", s.Addrs()[0].String())
			assert.Nil(t, err)
			defer conn.Close()
			r := bufio.NewReader(conn)

			for _, path := range []string{"/a", "/b"} {
				resp := roundTrip(t, conn, r, path)
				assert.Equal(t, 200, resp.StatusCode)
				assert.Equal(t, "ferry", resp.Header.Get("Server"))
				assert.NotEmpty(t, resp.Header.Get("Date"))
				assert.Equal(t, path, readBody(t, resp))
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.Nil(t, s.Shutdown(ctx))
			assert.NotNil(t, s.Shutdown(ctx))
		})
	}
}

func TestServerShutdownWaitsForInFlight(t *testing.T) {
	for _, transport := range []string{config.TransportStandard, config.TransportNetpoll} {
		t.Run(transport, func(t *testing.T) {
			started := make(chan struct{})
			slow := func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
				close(started)
				time.Sleep(100 * time.Millisecond)
				return protocol.NewResponse(200).SetBodyString(req.Path), nil
			}
			s, err := New(slow,
				WithHostPort("127.0.0.1", 0),
				WithTempFs(afero.NewMemMapFs()),
				WithThreads(2),
				WithNetwork(transport))
			assert.Nil(t, err)
			go func() { _ = s.Run() }()

			conn, err := net.Dial("tcp", s.Addrs()[0].String())
			assert.Nil(t, err)
			defer conn.Close()
			_, err = conn.Write([]byte("GET /slow HTTP/1.1\r\nHost: x\r\n\r\n"))
			assert.Nil(t, err)
			<-started

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- s.Shutdown(ctx) }()

			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			r := bufio.NewReader(conn)
			resp, err := http.ReadResponse(r, nil)
			assert.Nil(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "/slow", readBody(t, resp))
			assert.Equal(t, "close", resp.Header.Get("Connection"))

			// 响应写出后连接被关闭
			_, err = r.ReadByte()
			assert.Equal(t, io.EOF, err)
			assert.Nil(t, <-done)
		})
	}
}

func TestServerConnectionLimit(t *testing.T) {
	s := startServer(t, WithConnectionLimit(1))
	defer s.Close()
	addr := s.Addrs()[0].String()

	first, err := net.Dial("tcp", addr)
	assert.Nil(t, err)
	resp := roundTrip(t, first, bufio.NewReader(first), "/first")
	assert.Equal(t, "/first", readBody(t, resp))

	// 名额被第一个连接占用，第二个连接的请求暂不被处理
	second, err := net.Dial("tcp", addr)
	assert.Nil(t, err)
	defer second.Close()
	_, err = second.Write([]byte("GET /second HTTP/1.1\r\n\r\n"))
	assert.Nil(t, err)
	_ = second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = second.Read(make([]byte, 1))
	assert.NotNil(t, err)

	assert.Nil(t, first.Close())
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err = http.ReadResponse(bufio.NewReader(second), nil)
	assert.Nil(t, err)
	assert.Equal(t, "/second", readBody(t, resp))
}

func TestServerBacklogWarning(t *testing.T) {
	var buf bytes.Buffer
	flog.SetOutput(&buf)
	defer flog.SetOutput(os.Stderr)

	s, err := New(pathHandler, WithHostPort("127.0.0.1", 0))
	assert.Nil(t, err)
	_ = s.Close()
	assert.NotContains(t, buf.String(), "backlog")

	s, err = New(pathHandler, WithHostPort("127.0.0.1", 0), WithAdjustments(map[string]string{"backlog": "16"}))
	assert.Nil(t, err)
	_ = s.Close()
	assert.Contains(t, buf.String(), "backlog=16 被忽略")
}

func TestServerIdleSweep(t *testing.T) {
	s := startServer(t,
		WithCleanupInterval(20*time.Millisecond),
		WithChannelTimeout(50*time.Millisecond))
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addrs()[0].String())
	assert.Nil(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}

func TestServerUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ferry.sock")
	s, err := New(pathHandler, WithUnixSocket(path, 0o660), WithTempFs(afero.NewMemMapFs()))
	assert.Nil(t, err)
	go func() { _ = s.Run() }()
	defer s.Close()

	info, err := os.Stat(path)
	assert.Nil(t, err)
	assert.Equal(t, os.FileMode(0o660), info.Mode().Perm())

	conn, err := net.Dial("unix", path)
	assert.Nil(t, err)
	defer conn.Close()
	resp := roundTrip(t, conn, bufio.NewReader(conn), "/sock")
	assert.Equal(t, "/sock", readBody(t, resp))
}

func TestServerInvalidOptions(t *testing.T) {
	_, err := New(pathHandler, WithThreads(0))
	assert.NotNil(t, err)

	_, err = New(pathHandler, WithListen("127.0.0.1:0"), WithHostPort("127.0.0.1", 0))
	assert.NotNil(t, err)
}

func TestServerRunTwice(t *testing.T) {
	s := startServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addrs()[0].String())
	assert.Nil(t, err)
	defer conn.Close()
	roundTrip(t, conn, bufio.NewReader(conn), "/")

	assert.Equal(t, errAlreadyRunning, s.Run())
}

func TestServerName(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	defer ln.Close()
	name, port := serverName(ln)
	assert.Equal(t, "127.0.0.1", name)
	assert.Equal(t, strings.Split(ln.Addr().String(), ":")[1], port)

	ln2, err := net.Listen("tcp", ":0")
	assert.Nil(t, err)
	defer ln2.Close()
	host, _ := os.Hostname()
	name, _ = serverName(ln2)
	assert.Equal(t, host, name)
}

func TestSpinWithSignalWaiter(t *testing.T) {
	s := startServer(t, WithExitWaitTime(time.Second))
	conn, err := net.Dial("tcp", s.Addrs()[0].String())
	assert.Nil(t, err)
	roundTrip(t, conn, bufio.NewReader(conn), "/")
	conn.Close()

	hooked := make(chan struct{})
	s.OnShutdown = append(s.OnShutdown, func(context.Context) { close(hooked) })
	s.SetCustomSignalWaiter(func(chan error) error { return nil })
	s.Spin()

	select {
	case <-hooked:
	case <-time.After(time.Second):
		t.Fatal("OnShutdown 钩子未执行")
	}
}
