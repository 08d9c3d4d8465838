package mock

import "strconv"

// CreateFixedBody 创建 bodySize 字节的 0-9 循环数字正文。
func CreateFixedBody(bodySize int) []byte {
	b := make([]byte, bodySize)
	for i := range b {
		b[i] = byte(i%10) + '0'
	}
	return b
}

// CreateChunkedBody 将 body 编码为分块正文，块大小依次为 1、2、3……
// trailer 依次追加在结束块之后，每项形如 "Name: value"。
func CreateChunkedBody(body []byte, trailer ...string) []byte {
	var b []byte
	chunkSize := 1
	for len(body) > 0 {
		chunkSize = min(chunkSize, len(body))
		b = strconv.AppendInt(b, int64(chunkSize), 16)
		b = append(b, "\r\n"...)
		b = append(b, body[:chunkSize]...)
		b = append(b, "\r\n"...)
		body = body[chunkSize:]
		chunkSize++
	}
	b = append(b, "0\r\n"...)
	for _, line := range trailer {
		b = append(b, line...)
		b = append(b, "\r\n"...)
	}
	return append(b, "\r\n"...)
}
