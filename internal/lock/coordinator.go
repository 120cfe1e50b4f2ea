package lock

import "time"

// Provider 按锁标识分发读/写锁句柄，并暴露等待策略。
type Provider interface {
	ReadLocker(id string) Locker
	WriteLocker(id string) Locker
	Timeout() time.Duration
}

// Coordinator 是基于目录的 Provider 实现；锁标识即锁目录路径。
type Coordinator struct {
	// AcquireTimeout 是每次获取锁的等待上限，<=0 时只尝试一次。
	AcquireTimeout time.Duration
	// MaxHold 是锁被视为遗弃之前的最长持有时间。
	MaxHold time.Duration
}

// NewCoordinator 使用给定策略构建 Coordinator，零值回退到默认值。
func NewCoordinator(timeout, maxHold time.Duration) *Coordinator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxHold == 0 {
		maxHold = DefaultMaxHold
	}
	return &Coordinator{AcquireTimeout: timeout, MaxHold: maxHold}
}

func (c *Coordinator) ReadLocker(id string) Locker {
	return NewReadLock(id, c.MaxHold)
}

func (c *Coordinator) WriteLocker(id string) Locker {
	return NewWriteLock(id, c.MaxHold)
}

func (c *Coordinator) Timeout() time.Duration {
	return c.AcquireTimeout
}
