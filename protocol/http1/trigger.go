package http1

import "context"

// trigger 是容量为 1 的唤醒信号，多次 pull 只唤醒一次 wait。
type trigger chan struct{}

func newTrigger() trigger {
	return make(trigger, 1)
}

func (t trigger) pull() {
	select {
	case t <- struct{}{}:
	default:
	}
}

// wait 阻塞至被唤醒，ctx 结束时返回假。
func (t trigger) wait(ctx context.Context) bool {
	select {
	case <-t:
		return true
	case <-ctx.Done():
		return false
	}
}
