// Package timer 提供可复用的计时器与带超时的等待。
package timer

import (
	"sync"
	"time"
)

var pool sync.Pool

// Acquire 取出一个在 d 后触发的计时器，用完须 Release。
func Acquire(d time.Duration) *time.Timer {
	t, ok := pool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}
	if t.Reset(d) {
		panic("BUG: 池中的计时器仍在运行")
	}
	return t
}

// Release 停止计时器并放回池中。放回后不得再使用 t。
func Release(t *time.Timer) {
	if !t.Stop() {
		// 已触发但未被读取，排空通道
		select {
		case <-t.C:
		default:
		}
	}
	pool.Put(t)
}

// WaitDone 等待 done 关闭，最多 d。按时完成返回 true。
func WaitDone(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	t := Acquire(d)
	defer Release(t)
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// WaitGroup 等待 wg 归零，最多 d。按时完成返回 true。
//
// 超时后内部协程仍会等到 wg 归零才退出。
func WaitGroup(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return WaitDone(done, d)
}
