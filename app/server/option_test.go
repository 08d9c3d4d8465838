package server

import (
	"net"
	"testing"
	"time"

	"github.com/favbox/ferry/common/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	lc := &net.ListenConfig{}
	opt := config.NewOptions([]config.Option{
		WithHostPort("127.0.0.1", 9000),
		WithThreads(8),
		WithTrustedProxy("10.0.0.1"),
		WithURLScheme("https"),
		WithURLPrefix(" /api/ "),
		WithRecvBytes(1024),
		WithSendBytes(2048),
		WithInbufOverflow(10),
		WithOutbufOverflow(20),
		WithConnectionLimit(3),
		WithCleanupInterval(time.Second),
		WithChannelTimeout(2 * time.Second),
		WithLogSocketErrors(false),
		WithMaxRequestHeaderSize(100),
		WithMaxRequestBodySize(200),
		WithExposeTracebacks(true),
		WithIdent("demo"),
		WithNetwork(config.TransportNetpoll),
		WithExitWaitTime(time.Second),
		WithListenConfig(lc),
		WithTempFs(fs),
	})

	assert.Equal(t, "127.0.0.1", opt.Host)
	assert.Equal(t, 9000, opt.Port)
	assert.True(t, opt.ExplicitHostPort())
	assert.Equal(t, 8, opt.Threads)
	assert.Equal(t, "10.0.0.1", opt.TrustedProxy)
	assert.Equal(t, "https", opt.URLScheme)
	assert.Equal(t, "/api", opt.URLPrefix)
	assert.Equal(t, 1024, opt.RecvBytes)
	assert.Equal(t, 2048, opt.SendBytes)
	assert.Equal(t, int64(10), opt.InbufOverflow)
	assert.Equal(t, int64(20), opt.OutbufOverflow)
	assert.Equal(t, 3, opt.ConnectionLimit)
	assert.Equal(t, time.Second, opt.CleanupInterval)
	assert.Equal(t, 2*time.Second, opt.ChannelTimeout)
	assert.False(t, opt.LogSocketErrors)
	assert.Equal(t, int64(100), opt.MaxRequestHeaderSize)
	assert.Equal(t, int64(200), opt.MaxRequestBodySize)
	assert.True(t, opt.ExposeTracebacks)
	assert.Equal(t, "demo", opt.Ident)
	assert.Equal(t, config.TransportNetpoll, opt.Transport)
	assert.Equal(t, time.Second, opt.ExitWaitTimeout)
	assert.Same(t, lc, opt.ListenConfig)
	assert.Equal(t, fs, opt.TempFs)
	assert.Nil(t, opt.Adjustments.Validate())
}

func TestDefaultOptions(t *testing.T) {
	opt := config.NewOptions(nil)

	assert.Equal(t, []string{"0.0.0.0:8080"}, opt.Addresses())
	assert.False(t, opt.ExplicitHostPort())
	assert.Equal(t, 4, opt.Threads)
	assert.Equal(t, "http", opt.URLScheme)
	assert.Equal(t, 100, opt.ConnectionLimit)
	assert.Equal(t, config.TransportStandard, opt.Transport)
	assert.Equal(t, 5*time.Second, opt.ExitWaitTimeout)
	assert.Nil(t, opt.TransporterNewer)
}

func TestListenAndUnixSocketOptions(t *testing.T) {
	opt := config.NewOptions([]config.Option{WithListen("127.0.0.1:81 *:82 82")})
	assert.Equal(t, []string{"127.0.0.1:81", ":82"}, opt.Addresses())

	opt = config.NewOptions([]config.Option{WithListen("host:99999")})
	assert.Empty(t, opt.Listen)

	opt = config.NewOptions([]config.Option{WithUnixSocket("/tmp/ferry.sock", 0o660)})
	assert.Equal(t, "/tmp/ferry.sock", opt.UnixSocket)
	assert.Equal(t, uint32(0o660), opt.UnixSocketPerms)
	assert.Empty(t, opt.Addresses())

	opt = config.NewOptions([]config.Option{
		WithHostPort("127.0.0.1", 0),
		WithUnixSocket("/tmp/ferry.sock", 0o600),
	})
	assert.NotNil(t, opt.Adjustments.Validate())
}

func TestWithAdjustments(t *testing.T) {
	opt := config.NewOptions([]config.Option{WithAdjustments(map[string]string{
		"threads":           "2",
		"channel_timeout":   "5",
		"expose_tracebacks": "yes",
	})})
	assert.Equal(t, 2, opt.Threads)
	assert.Equal(t, 5*time.Second, opt.ChannelTimeout)
	assert.True(t, opt.ExposeTracebacks)

	opt = config.NewOptions([]config.Option{WithAdjustments(map[string]string{"threads": "x"})})
	assert.Equal(t, 4, opt.Threads)
}
