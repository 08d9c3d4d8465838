package consts

// HTTP 请求方法。
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
)

// 响应标头名称，已是规范写法。
const (
	HeaderConnection       = "Connection"
	HeaderContentLength    = "Content-Length"
	HeaderContentType      = "Content-Type"
	HeaderDate             = "Date"
	HeaderServer           = "Server"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderVia              = "Via"
)

// 请求标头在解析后的键：全大写，'-' 替换为 '_'。
const (
	KeyConnection       = "CONNECTION"
	KeyContentLength    = "CONTENT_LENGTH"
	KeyContentType      = "CONTENT_TYPE"
	KeyExpect           = "EXPECT"
	KeyHost             = "HOST"
	KeyTransferEncoding = "TRANSFER_ENCODING"
	KeyForwardedProto   = "X_FORWARDED_PROTO"
)

// 标头取值。
const (
	ValueKeepAlive       = "keep-alive"
	ValueClose           = "close"
	ValueChunked         = "chunked"
	Value100Continue     = "100-continue"
	ValueTextPlain       = "text/plain"
	ValueTextPlainUTF8   = "text/plain; charset=utf-8"
	ValueApplicationJSON = "application/json"
)

// 协议版本。
const (
	HTTP10 = "1.0"
	HTTP11 = "1.1"
)

var (
	StrCRLF          = []byte("\r\n")
	StrContinue      = []byte("HTTP/1.1 100 Continue\r\n\r\n")
	StrChunkTerminal = []byte("0\r\n\r\n")
)
