package protocol

import "github.com/favbox/ferry/internal/bytesconv"

func itoa(n int64) string {
	return string(bytesconv.AppendUint(nil, n))
}
