package xrwlock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders 是信号量总权重，同时也是读锁并发上限。
const maxReaders = 1 << 30

// RWMutex 是可降级的读写锁。
// 必须通过 [New] 创建，零值不可用。所有方法都是并发安全的。
type RWMutex struct {
	sem *semaphore.Weighted
}

// New 创建一个未加锁的 RWMutex。
func New() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(maxReaders)}
}

// RLock 阻塞式获取读锁。
// ctx 取消或超时时返回 ctx.Err()；ctx 为 nil 时返回 [ErrNilContext]。
func (rw *RWMutex) RLock(ctx context.Context) (*ReadGuard, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := rw.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &ReadGuard{rw: rw}, nil
}

// Lock 阻塞式获取写锁。
// ctx 取消或超时时返回 ctx.Err()；ctx 为 nil 时返回 [ErrNilContext]。
func (rw *RWMutex) Lock(ctx context.Context) (*WriteGuard, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := rw.sem.Acquire(ctx, maxReaders); err != nil {
		return nil, err
	}
	return &WriteGuard{rw: rw}, nil
}

// TryRLock 非阻塞获取读锁。
// 写锁被持有或有写者排队时返回 (nil, false)。
func (rw *RWMutex) TryRLock() (*ReadGuard, bool) {
	if !rw.sem.TryAcquire(1) {
		return nil, false
	}
	return &ReadGuard{rw: rw}, true
}

// TryLock 非阻塞获取写锁。
// 任何读锁或写锁被持有时返回 (nil, false)。
func (rw *RWMutex) TryLock() (*WriteGuard, bool) {
	if !rw.sem.TryAcquire(maxReaders) {
		return nil, false
	}
	return &WriteGuard{rw: rw}, true
}
