package xrwlock

import "sync/atomic"

// ReadGuard 表示一次已持有的读锁。
// 守卫与获取它的调用栈解耦，可以被存放在其他对象中。
type ReadGuard struct {
	rw   *RWMutex
	done atomic.Bool
}

// Release 释放读锁。
// 幂等：第一次调用返回 nil，后续返回 [ErrNotHeld]。
func (g *ReadGuard) Release() error {
	if !g.done.CompareAndSwap(false, true) {
		return ErrNotHeld
	}
	g.rw.sem.Release(1)
	return nil
}

// Held 报告守卫是否仍持有锁。
func (g *ReadGuard) Held() bool {
	return !g.done.Load()
}

// WriteGuard 表示一次已持有的写锁。
type WriteGuard struct {
	rw   *RWMutex
	done atomic.Bool
}

// Release 释放写锁。
// 幂等：第一次调用返回 nil，后续（包括 Downgrade 之后）返回 [ErrNotHeld]。
func (g *WriteGuard) Release() error {
	if !g.done.CompareAndSwap(false, true) {
		return ErrNotHeld
	}
	g.rw.sem.Release(maxReaders)
	return nil
}

// Downgrade 将写锁原子地转换为读锁，返回新的读守卫。
// 调用后 g 失效；对已释放或已降级的守卫调用返回 [ErrNotHeld]。
//
// 设计决策: 只归还 maxReaders-1 个权重。转换期间当前持有者始终占用 1 个权重，
// 等待写锁的 goroutine 需要全部权重，因此不存在写者插入的窗口；
// 排在写者之前的读者会被唤醒，与降级后的读守卫并发持有读锁。
func (g *WriteGuard) Downgrade() (*ReadGuard, error) {
	if !g.done.CompareAndSwap(false, true) {
		return nil, ErrNotHeld
	}
	g.rw.sem.Release(maxReaders - 1)
	return &ReadGuard{rw: g.rw}, nil
}

// Held 报告守卫是否仍持有写锁。
func (g *WriteGuard) Held() bool {
	return !g.done.Load()
}
