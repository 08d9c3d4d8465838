package server

import (
	"runtime/debug"
	"sync"
	"time"

	errs "github.com/favbox/ferry/common/errors"
	"github.com/favbox/ferry/common/flog"
	"github.com/favbox/ferry/common/timer"
	"github.com/favbox/ferry/internal/stats"
	"github.com/favbox/ferry/protocol/http1"
)

// Task 是调度器执行的工作单元。
type Task = http1.Task

var _ http1.Dispatcher = (*Dispatcher)(nil)

// Dispatcher 是固定数量工作协程组成的任务调度器，任务按 FIFO 顺序执行。
type Dispatcher struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Task

	threads     map[int]struct{}
	nextID      int
	stopCount   int // 等待退出的工作协程数
	activeCount int // 正在执行任务的工作协程数
	stopped     bool
	wg          sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{threads: make(map[int]struct{})}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// SetThreadCount 将工作协程数调整为 n。减少时，空闲的工作协程先退出。
func (d *Dispatcher) SetThreadCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		n = 0
	}

	running := len(d.threads) - d.stopCount
	for ; running < n; running++ {
		if d.stopCount > 0 {
			// 撤回尚未生效的退出请求
			d.stopCount--
			continue
		}
		id := d.nextID
		d.nextID++
		d.threads[id] = struct{}{}
		d.wg.Add(1)
		go d.worker(id)
	}
	if running > n {
		d.stopCount += running - n
		d.cond.Broadcast()
	}
	stats.DispatcherThreads.Set(float64(n))
}

// ThreadCount 返回存活的工作协程数，包括即将退出的。
func (d *Dispatcher) ThreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.threads)
}

// AddTask 将 task 加入队列。调度器已关闭时取消该任务并返回错误。
func (d *Dispatcher) AddTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			task.Cancel()
			err = errs.Newf(errs.ErrorTypePrivate, r, "任务入队失败")
		}
	}()
	task.Defer()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		task.Cancel()
		return errs.ErrDispatcherStopped
	}
	d.queue = append(d.queue, task)
	depth := len(d.queue)
	idle := len(d.threads) - d.stopCount - d.activeCount
	d.cond.Signal()
	d.mu.Unlock()

	stats.DispatcherQueueDepth.Set(float64(depth))
	if depth > idle {
		flog.SystemLogger().Warnf("任务队列深度为 %d", depth)
	}
	return nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && d.stopCount == 0 {
			d.cond.Wait()
		}
		if d.stopCount > 0 {
			d.stopCount--
			delete(d.threads, id)
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.activeCount++
		depth := len(d.queue)
		d.mu.Unlock()

		stats.DispatcherQueueDepth.Set(float64(depth))
		d.run(task)

		d.mu.Lock()
		d.activeCount--
		d.mu.Unlock()
	}
}

// 执行任务，恐慌只记录日志，工作协程继续运行。
func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			stats.DispatcherTaskPanics.Inc()
			flog.SystemLogger().Errorf("执行任务时发生恐慌: %v\n%s", r, debug.Stack())
		}
	}()
	task.Service()
}

// Shutdown 停止接收任务，令全部工作协程退出，并至多等待 timeout。
// cancelPending 为真时取消仍在排队的任务。全部工作协程按时退出时返回真。
func (d *Dispatcher) Shutdown(cancelPending bool, timeout time.Duration) bool {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.SetThreadCount(0)

	exited := timer.WaitGroup(&d.wg, timeout)
	if !exited {
		flog.SystemLogger().Warnf("%d 个工作协程仍在运行", d.ThreadCount())
	}

	if cancelPending {
		d.mu.Lock()
		pending := d.queue
		d.queue = nil
		d.mu.Unlock()
		for _, task := range pending {
			task.Cancel()
		}
		stats.DispatcherQueueDepth.Set(0)
	}
	return exited
}
