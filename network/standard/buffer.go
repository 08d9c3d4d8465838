package standard

import (
	"github.com/bytedance/gopkg/lang/mcache"
)

const (
	block1k           = 1024
	block4k           = 4096
	block64k          = 64 * block1k
	mallocMax         = 512 * block1k
	defaultMallocSize = block4k
)

// 分配初始 size 和最小容量 capacity 的字节切片。
// 若容量 capacity 超过了最大的分配大小 mallocMax 则不使用 mcache 缓存池。
func malloc(size, capacity int) []byte {
	if capacity > mallocMax {
		return make([]byte, size, capacity)
	}
	return mcache.Malloc(size, capacity)
}

// 释放 mcache 创建的缓冲区。
func free(buf []byte) {
	// 非缓存池分配的 buf
	if cap(buf) > mallocMax || cap(buf) == 0 {
		return
	}
	mcache.Free(buf)
}

// 保证 buf 还能追加 n 个字节，必要时换用更大的缓冲区。
func grow(buf []byte, n int) []byte {
	if cap(buf)-len(buf) >= n {
		return buf
	}
	size := max(2*cap(buf), len(buf)+n, defaultMallocSize)
	nb := malloc(len(buf), size)
	copy(nb, buf)
	free(buf)
	return nb
}
