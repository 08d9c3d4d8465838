package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTimeout            = errors.New("timeout")
	ErrIdleTimeout        = errors.New("idle timeout")
	ErrConnectionClosed   = errors.New("连接已关闭")
	ErrNothingRead        = errors.New("未读取任何内容")
	ErrNeedMore           = errors.New("需要更多数据")
	ErrNotSupportProtocol = errors.New("不支持的协议")

	ErrMalformedHeader    = errors.New("格式错误的请求头行")
	ErrMalformedFirstLine = errors.New("格式错误的请求行")
	ErrLowercaseMethod    = errors.New("请求方法必须为大写")
	ErrHeaderTooLarge     = errors.New("请求头超过大小限制")
	ErrBodyTooLarge       = errors.New("正文大小超过给定限制")
	ErrBadChunkSize       = errors.New("无效的分块大小")
	ErrBadChunk           = errors.New("错误分块的正文流")
	ErrTransferEncoding   = errors.New("不支持的传输编码")

	ErrDispatcherStopped = errors.New("任务调度器已停止")
	ErrBufferClosed      = errors.New("缓冲区已关闭")
)

type ErrorType uint64

const (
	// ErrorTypeParse 表示请求解析失败。
	ErrorTypeParse ErrorType = 1 << iota
	// ErrorTypeSocket 表示套接字读写失败。
	ErrorTypeSocket
	// ErrorTypeApp 表示应用处理器返回或抛出的错误。
	ErrorTypeApp
	// ErrorTypePrivate 表示一个私有的错误。
	ErrorTypePrivate
	// ErrorTypePublic 表示一个公开的错误。
	ErrorTypePublic
	// ErrorTypeAny 表示任何其他错误。
	ErrorTypeAny
)

// Error 表示一个带有错误类型和元信息的错误。
type Error struct {
	Err  error
	Type ErrorType
	Meta any
}

var _ error = (*Error)(nil)

func (msg *Error) Error() string {
	if msg.Meta != nil {
		return fmt.Sprintf("%s (%v)", msg.Err, msg.Meta)
	}
	return msg.Err.Error()
}

func (msg *Error) Unwrap() error {
	return msg.Err
}

func (msg *Error) IsType(flags ErrorType) bool {
	return (msg.Type & flags) > 0
}

func (msg *Error) SetMeta(data any) *Error {
	msg.Meta = data
	return msg
}

// New 新建一个指定错误、错误类型及元数据的自定义错误。
func New(err error, t ErrorType, meta any) *Error {
	return &Error{Err: err, Type: t, Meta: meta}
}

func NewPublic(err string) *Error {
	return New(errors.New(err), ErrorTypePublic, nil)
}

func NewPrivate(err string) *Error {
	return New(errors.New(err), ErrorTypePrivate, nil)
}

func Newf(t ErrorType, meta any, format string, v ...any) *Error {
	return New(fmt.Errorf(format, v...), t, meta)
}

// IsType 报告 err 链中是否存在指定类型的 *Error。
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.IsType(t)
}

// HTTPError 是可直接渲染为错误响应的协议错误。
type HTTPError struct {
	Code   int
	Reason string
	Body   string
	Cause  error
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", e.Code, e.Reason)
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// Status 返回状态行中的 "<code> <reason>"。
func (e *HTTPError) Status() string {
	return fmt.Sprintf("%d %s", e.Code, e.Reason)
}

func NewBadRequest(cause error, body string) *HTTPError {
	return &HTTPError{Code: 400, Reason: "Bad Request", Body: body, Cause: cause}
}

func NewHeaderTooLarge(body string) *HTTPError {
	return &HTTPError{Code: 431, Reason: "Request Header Fields Too Large", Body: body, Cause: ErrHeaderTooLarge}
}

func NewBodyTooLarge(body string) *HTTPError {
	return &HTTPError{Code: 413, Reason: "Request Entity Too Large", Body: body, Cause: ErrBodyTooLarge}
}

func NewNotImplemented(body string) *HTTPError {
	return &HTTPError{Code: 501, Reason: "Not Implemented", Body: body, Cause: ErrTransferEncoding}
}

func NewInternalServerError(cause error, body string) *HTTPError {
	return &HTTPError{Code: 500, Reason: "Internal Server Error", Body: body, Cause: cause}
}

// AsHTTPError 从错误链中取出 *HTTPError。
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
