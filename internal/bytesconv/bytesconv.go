package bytesconv

import (
	"errors"
	"net/http"
	"time"
	"unsafe"
)

const lowerHex = "0123456789abcdef"

// maxHexChars 限制十六进制数的位数，保证结果落在 int64 正数范围内。
const maxHexChars = 15

var (
	errEmptyInt               = errors.New("数字为空")
	errUnexpectedFirstChar    = errors.New("数字须以 0-9 开头")
	errUnexpectedTrailingChar = errors.New("数字后跟有非 0-9 字符")
	errTooLongInt             = errors.New("数字位数过多")
	errEmptyHexNum            = errors.New("十六进制数为空")
	errTooLargeHexNum         = errors.New("十六进制数位数过多")
	errUnexpectedHexChar      = errors.New("含非十六进制字符")
)

var (
	ToLowerTable [256]byte
	ToUpperTable [256]byte
	// Hex2intTable 中非十六进制字符的值为 16。
	Hex2intTable [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		c := byte(i)
		ToLowerTable[i], ToUpperTable[i], Hex2intTable[i] = c, c, 16
		switch {
		case 'A' <= c && c <= 'Z':
			ToLowerTable[i] = c + 'a' - 'A'
		case 'a' <= c && c <= 'z':
			ToUpperTable[i] = c - ('a' - 'A')
		}
		switch {
		case '0' <= c && c <= '9':
			Hex2intTable[i] = c - '0'
		case 'a' <= c && c <= 'f':
			Hex2intTable[i] = c - 'a' + 10
		case 'A' <= c && c <= 'F':
			Hex2intTable[i] = c - 'A' + 10
		}
	}
}

// B2s 将字节切片转为字符串，且不分配内存。调用方须保证 b 之后不被修改。
func B2s(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// S2b 将字符串转为字节切片，且不分配内存。返回的切片不可写。
func S2b(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// AppendUint 向 dst 追加非负整数 n 并返回。
func AppendUint(dst []byte, n int64) []byte {
	if n < 0 {
		panic("BUG: int 必须为非负整数")
	}
	var b [20]byte
	i := len(b)
	for n >= 10 {
		i--
		q := n / 10
		b[i] = '0' + byte(n-q*10)
		n = q
	}
	i--
	b[i] = '0' + byte(n)
	return append(dst, b[i:]...)
}

// AppendHex 向 dst 追加 n 的小写十六进制表示。
func AppendHex(dst []byte, n int64) []byte {
	if n < 0 {
		panic("BUG: int 必须为非负整数")
	}
	var b [16]byte
	i := len(b)
	for {
		i--
		b[i] = lowerHex[n&0xf]
		n >>= 4
		if n == 0 {
			break
		}
	}
	return append(dst, b[i:]...)
}

// ParseHex 严格解析十六进制数：非空、仅含 0-9a-fA-F、不超过 15 位。
func ParseHex(b []byte) (int64, error) {
	if len(b) == 0 {
		return -1, errEmptyHexNum
	}
	if len(b) > maxHexChars {
		return -1, errTooLargeHexNum
	}
	var n int64
	for _, c := range b {
		k := Hex2intTable[c]
		if k == 16 {
			return -1, errUnexpectedHexChar
		}
		n = n<<4 | int64(k)
	}
	return n, nil
}

// ParseUint 解析十进制非负整数，拒绝空串、符号与尾随字符。
func ParseUint(b []byte) (int64, error) {
	if len(b) == 0 {
		return -1, errEmptyInt
	}
	var v int64
	for i, c := range b {
		k := c - '0'
		if k > 9 {
			if i == 0 {
				return -1, errUnexpectedFirstChar
			}
			return -1, errUnexpectedTrailingChar
		}
		vNew := 10*v + int64(k)
		if vNew < v {
			return -1, errTooLongInt
		}
		v = vNew
	}
	return v, nil
}

// AppendHTTPDate 向 dst 追加 HTTP 兼容时间并返回。
func AppendHTTPDate(dst []byte, date time.Time) []byte {
	return date.UTC().AppendFormat(dst, http.TimeFormat)
}

// AppendUnquoted 向 dst 追加百分号解码后的 src。非法的转义序列原样保留。
func AppendUnquoted(dst, src []byte) []byte {
	for i, n := 0, len(src); i < n; i++ {
		c := src[i]
		if c == '%' && i+2 < n {
			x1, x2 := Hex2intTable[src[i+1]], Hex2intTable[src[i+2]]
			if x1 != 16 && x2 != 16 {
				dst = append(dst, x1<<4|x2)
				i += 2
				continue
			}
		}
		dst = append(dst, c)
	}
	return dst
}
