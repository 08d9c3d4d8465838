// Package req 实现 HTTP/1.x 请求的增量解析。
package req

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/favbox/ferry/common/buffer"
	"github.com/favbox/ferry/common/config"
	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/protocol/consts"
	"github.com/favbox/ferry/protocol/http1/ext"
	"github.com/spf13/afero"
)

// State 是解析器所处的阶段。
type State int

const (
	StateAwaitingHeaders State = iota
	StateAwaitingBody
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeaders:
		return "AwaitingHeaders"
	case StateAwaitingBody:
		return "AwaitingBody"
	case StateCompleted:
		return "Completed"
	case StateErrored:
		return "Errored"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Limits 是解析器用到的资源上限。
type Limits struct {
	MaxHeaderSize int64
	MaxBodySize   int64
	InbufOverflow int64
	TempFs        afero.Fs
}

// LimitsFrom 从服务器配置中取出解析器上限。
func LimitsFrom(o *config.Options) Limits {
	return Limits{
		MaxHeaderSize: o.MaxRequestHeaderSize,
		MaxBodySize:   o.MaxRequestBodySize,
		InbufOverflow: o.InbufOverflow,
		TempFs:        o.TempFs,
	}
}

// Parser 增量解析单个请求。每个请求一个实例，不可复用。
type Parser struct {
	limits Limits

	header              []byte
	headerBytesReceived int64
	bodyBytesReceived   int64
	headersFinished     bool
	completed           bool
	empty               bool
	err                 *errs.HTTPError

	line            firstLine
	uri             uriParts
	headers         map[string]string
	connectionClose bool
	expectContinue  bool
	chunked         bool
	contentLength   int64
	receiver        ext.Receiver
}

func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

// Received 消费 data 并返回实际消费的字节数。完成后恒返回 0。
func (p *Parser) Received(data []byte) int {
	if p.completed {
		return 0
	}
	if p.headersFinished {
		return p.receivedBody(data)
	}

	s := append(p.header, data...)
	consumed := len(data)
	index := ext.FindDoubleNewline(s)
	if index >= 0 {
		p.headerBytesReceived = int64(index)
		consumed = len(data) - (len(s) - index)
	} else {
		p.headerBytesReceived += int64(len(data))
	}

	if p.headerBytesReceived >= p.limits.MaxHeaderSize {
		p.header = nil
		p.fail(errs.NewHeaderTooLarge("exceeds max_header of " + strconv.FormatInt(p.limits.MaxHeaderSize, 10)))
		return consumed
	}
	if index < 0 {
		p.header = s
		return consumed
	}

	block := bytes.TrimLeft(s[:index], " \t\r\n")
	p.header = nil
	if len(block) == 0 {
		p.empty = true
		p.completed = true
		return consumed
	}
	if err := p.parseHeader(block); err != nil {
		p.fail(err)
		return consumed
	}
	p.headersFinished = true
	switch {
	case p.receiver == nil:
		p.completed = true
	case p.contentLength > 0 && p.contentLength >= p.limits.MaxBodySize:
		p.fail(errs.NewBodyTooLarge("exceeds max_body of " + strconv.FormatInt(p.limits.MaxBodySize, 10)))
	}
	return consumed
}

func (p *Parser) receivedBody(data []byte) int {
	consumed := p.receiver.Received(data)
	p.bodyBytesReceived += int64(consumed)
	switch {
	case p.bodyBytesReceived >= p.limits.MaxBodySize:
		// 定长请求体已在标头阶段校验过，这里只会由分块请求体触发
		p.fail(errs.NewBodyTooLarge("exceeds max_body of " + strconv.FormatInt(p.limits.MaxBodySize, 10)))
	case p.receiver.Err() != nil:
		if he, ok := errs.AsHTTPError(p.receiver.Err()); ok {
			p.fail(he)
		} else {
			p.fail(errs.NewBadRequest(p.receiver.Err(), p.receiver.Err().Error()))
		}
	case p.receiver.Completed():
		p.completed = true
		if p.chunked {
			p.headers[consts.KeyContentLength] = strconv.FormatInt(p.receiver.Buffer().Len(), 10)
		}
	}
	return consumed
}

// 记录首个错误并终止解析。
func (p *Parser) fail(err *errs.HTTPError) {
	if p.err == nil {
		p.err = err
	}
	p.completed = true
	p.connectionClose = true
}

func (p *Parser) parseHeader(block []byte) *errs.HTTPError {
	first, rest := block, []byte(nil)
	if i := bytes.IndexByte(block, '\n'); i >= 0 {
		first, rest = block[:i], block[i+1:]
	}
	line, err := crackFirstLine(bytes.TrimRight(first, " \t\r"))
	if err != nil {
		return err
	}
	lines, err := headerLines(rest)
	if err != nil {
		return err
	}
	headers, err := parseHeaderLines(lines)
	if err != nil {
		return err
	}

	p.line = line
	p.uri = splitURI(line.uri)
	p.headers = headers
	if p.line.version == "" {
		p.line.version = consts.HTTP10
	}

	connection := strings.ToLower(headers[consts.KeyConnection])
	switch p.line.version {
	case consts.HTTP10:
		if connection != consts.ValueKeepAlive {
			p.connectionClose = true
		}
	case consts.HTTP11:
		if te, ok := headers[consts.KeyTransferEncoding]; ok {
			delete(headers, consts.KeyTransferEncoding)
			if !strings.EqualFold(strings.TrimSpace(te), consts.ValueChunked) {
				return errs.NewNotImplemented("Transfer-Encoding " + te + " not supported")
			}
			p.chunked = true
			p.receiver = ext.NewChunkedReceiver(p.newBuffer())
		}
		p.expectContinue = strings.EqualFold(headers[consts.KeyExpect], consts.Value100Continue)
		if connection == consts.ValueClose {
			p.connectionClose = true
		}
	}

	if !p.chunked {
		cl, err := strconv.ParseInt(strings.TrimSpace(headers[consts.KeyContentLength]), 10, 64)
		if err != nil || cl < 0 {
			cl = 0
		}
		p.contentLength = cl
		if cl > 0 {
			p.receiver = ext.NewFixedStreamReceiver(cl, p.newBuffer())
		}
	}
	return nil
}

func (p *Parser) newBuffer() *buffer.Overflowable {
	return buffer.New(p.limits.TempFs, p.limits.InbufOverflow)
}

// State 返回当前阶段。
func (p *Parser) State() State {
	switch {
	case p.err != nil:
		return StateErrored
	case p.completed:
		return StateCompleted
	case p.headersFinished:
		return StateAwaitingBody
	}
	return StateAwaitingHeaders
}

func (p *Parser) Completed() bool       { return p.completed }
func (p *Parser) Empty() bool           { return p.empty }
func (p *Parser) HeadersFinished() bool { return p.headersFinished }
func (p *Parser) ExpectContinue() bool  { return p.expectContinue }
func (p *Parser) ConnectionClose() bool { return p.connectionClose }
func (p *Parser) Err() *errs.HTTPError  { return p.err }

// Close 释放请求体缓冲区。
func (p *Parser) Close() error {
	if p.receiver != nil {
		return p.receiver.Buffer().Close()
	}
	return nil
}
