package network

import (
	"net"
	"time"
)

// Reader 用于缓冲读取。
type Reader interface {
	// Len 返回已缓冲的可读字节数。
	Len() int

	// Peek 返回接下来的 n 个字节，但不移动读指针。缓冲不足时阻塞读取连接。
	Peek(n int) ([]byte, error)

	// Skip 跳过 n 个字节。
	Skip(n int) error

	// Release 回收已读部分占用的内存。
	//
	// 调用后，之前 Peek 得到的切片不可再使用。
	Release() error
}

// Writer 用于缓冲写入。
type Writer interface {
	// WriteBinary 向写缓冲追加 b。在 Flush 成功之前 b 须保持有效。
	WriteBinary(b []byte) (n int, err error)

	// Flush 向对端发送缓冲的数据。
	Flush() error
}

// Conn 是传输层交给协议层的连接。
type Conn interface {
	net.Conn
	Reader
	Writer

	// SetReadTimeout 设置单次阻塞读取的超时时长，0 表示不超时。
	SetReadTimeout(t time.Duration) error
	// SetWriteTimeout 设置单次写出的超时时长，0 表示不超时。
	SetWriteTimeout(t time.Duration) error
}

// ErrorNormalization 将传输实现特有的错误转为 common/errors 中的错误。
type ErrorNormalization interface {
	ToFerryError(err error) error
}
