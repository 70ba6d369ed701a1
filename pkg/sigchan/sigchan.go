// Package sigchan coalesces notifications: many Emit calls before a receiver
// wakes up collapse into one signal.
package sigchan

import "context"

// Chan 非阻塞信号 channel，只通知不传数据
type Chan struct {
	c chan struct{}
}

// New bufferSize 通常为 1（合并重复信号）
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 非阻塞；缓冲已满时丢弃
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Wait 等到下一个信号；ctx 结束时返回 false
func (c *Chan) Wait(ctx context.Context) bool {
	select {
	case <-c.c:
		return true
	case <-ctx.Done():
		return false
	}
}
