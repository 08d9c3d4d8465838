package network

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter 限制同时存活的连接数。
type Limiter struct {
	sem    *semaphore.Weighted
	limit  int64
	active atomic.Int64
}

func NewLimiter(limit int) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
}

// Acquire 阻塞至有空余名额或 ctx 结束。
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.active.Add(1)
	return nil
}

// TryAcquire 不阻塞地申请名额。
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active 返回当前占用的名额数。
//
// 标准传输层在 Accept 之前占用名额，因此包含正在等待的那次 Accept。
func (l *Limiter) Active() int {
	return int(l.active.Load())
}

// Limit 返回名额上限。
func (l *Limiter) Limit() int {
	return int(l.limit)
}
