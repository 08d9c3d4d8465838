package req

import (
	"bytes"
	"regexp"
	"strings"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/internal/bytesconv"
)

// 请求行：METHOD SP URI [SP HTTP/VERSION]，URI 可带绝对形式的协议与主机。
var firstLineRe = regexp.MustCompile(`^([^ ]+) ((?:[^ :?#]+://[^ ?#/]*(?::[0-9]{1,5})?)?[^ ]+)(?: HTTP/([0-9.]+))?$`)

type firstLine struct {
	method  string
	uri     string
	version string
}

// 拆分请求行。小写的方法名视为错误。
func crackFirstLine(line []byte) (firstLine, *errs.HTTPError) {
	m := firstLineRe.FindSubmatch(line)
	if m == nil {
		return firstLine{}, errs.NewBadRequest(errs.ErrMalformedFirstLine, "Malformed HTTP request line")
	}
	method := string(m[1])
	if strings.ToUpper(method) != method {
		return firstLine{}, errs.NewBadRequest(errs.ErrLowercaseMethod, "Malformed HTTP method "+method)
	}
	return firstLine{method: method, uri: string(m[2]), version: string(m[3])}, nil
}

// 按 \n 切分标头行，以空格或制表符开头的行拼接到上一行。
func headerLines(header []byte) ([][]byte, *errs.HTTPError) {
	var lines [][]byte
	for _, line := range bytes.Split(header, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if len(lines) == 0 {
				return nil, errs.NewBadRequest(errs.ErrMalformedHeader, "Malformed header line "+snippet(line))
			}
			lines[len(lines)-1] = append(lines[len(lines)-1], line...)
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	return lines, nil
}

// 解析标头块为规范化的键值表。名称含 '_' 的标头被忽略，重复的标头以 ", " 合并。
func parseHeaderLines(lines [][]byte) (map[string]string, *errs.HTTPError) {
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		index := bytes.IndexByte(line, ':')
		if index <= 0 {
			continue
		}
		name := line[:index]
		if bytes.ContainsAny(name, " \t") {
			return nil, errs.NewBadRequest(errs.ErrMalformedHeader, "Invalid whitespace in header name "+snippet(name))
		}
		if bytes.IndexByte(name, '_') >= 0 {
			continue
		}
		key := normalizeKey(name)
		value := string(bytes.TrimSpace(line[index+1:]))
		if prev, ok := headers[key]; ok {
			value = prev + ", " + value
		}
		headers[key] = value
	}
	return headers, nil
}

func normalizeKey(name []byte) string {
	b := make([]byte, len(name))
	for i, c := range name {
		if c == '-' {
			b[i] = '_'
			continue
		}
		b[i] = bytesconv.ToUpperTable[c]
	}
	return bytesconv.B2s(b)
}

type uriParts struct {
	scheme, netloc, path, query, fragment string
}

// 拆分请求目标。以 // 开头的目标整体视为路径。
func splitURI(uri string) uriParts {
	var p uriParts
	rest := uri
	if !strings.HasPrefix(uri, "//") {
		if i := strings.Index(uri, "://"); i > 0 && !strings.ContainsAny(uri[:i], "/?#") {
			p.scheme = uri[:i]
			rest = uri[i+3:]
			end := strings.IndexAny(rest, "/?#")
			if end < 0 {
				end = len(rest)
			}
			p.netloc, rest = rest[:end], rest[end:]
		}
	}
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest, p.fragment = rest[:i], rest[i+1:]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, p.query = rest[:i], rest[i+1:]
	}
	p.path = string(bytesconv.AppendUnquoted(nil, []byte(rest)))
	return p
}

func snippet(b []byte) string {
	return strings.TrimSpace(string(b))
}
