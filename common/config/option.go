package config

import (
	"net"
	"time"

	"github.com/favbox/ferry/network"
	"github.com/spf13/afero"
)

const defaultWaitExitTimeout = 5 * time.Second

// Option 是用于配置 Options 唯一结构体。
type Option struct {
	F func(o *Options)
}

// Options 是服务器运行所需的全部配置。
type Options struct {
	Adjustments

	// ExitWaitTimeout 是优雅退出的等待时间，默认 5s。
	ExitWaitTimeout time.Duration

	// TempFs 是请求体与响应缓冲落盘所用的文件系统，默认为操作系统文件系统。
	TempFs afero.Fs

	ListenConfig *net.ListenConfig

	// Limiter 是所有监听器共享的连接名额，由服务器在启动时注入。
	Limiter *network.Limiter

	// TransporterNewer 自定义传输器的创建，为空时按 Transport 选择。
	TransporterNewer func(opt *Options) network.Transporter
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *Options) Apply(opts []Option) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewOptions 创建基于给定配置函数的配置项。
func NewOptions(opts []Option) *Options {
	options := &Options{
		Adjustments:     DefaultAdjustments(),
		ExitWaitTimeout: defaultWaitExitTimeout,
		TempFs:          afero.NewOsFs(),
	}
	options.Apply(opts)
	return options
}

// SetHostPort 供选项函数记录 host/port 被显式设置。
func (o *Options) SetHostPort(host string, port int) {
	o.Host, o.Port = host, port
	o.hostPortSet = true
}
