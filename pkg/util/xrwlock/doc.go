// Package xrwlock 提供支持原子降级的进程内读写锁，以及脱离作用域的锁守卫。
//
// 与 sync.RWMutex 不同，xrwlock 的加锁结果是一个守卫对象（[ReadGuard] / [WriteGuard]），
// 守卫可以被存放到其他值中、跨函数传递，由持有者在合适时机调用 Release 释放。
// 这是 xshardmap 引用类型的底层原语：引用对象持有守卫，守卫存活期间数据受保护。
//
// # 特性
//
//   - Context 支持：RLock/Lock 支持超时和取消（ctx 为 nil 时返回 [ErrNilContext]）
//   - 非阻塞获取：TryRLock/TryLock
//   - 原子降级：WriteGuard.Downgrade 将写锁就地转换为读锁，期间不存在无锁窗口，
//     任何其他写者都无法在写入与随后的读取之间插入
//   - 守卫语义：Release 幂等（首次返回 nil，后续返回 [ErrNotHeld]）
//   - 写者优先：等待队列 FIFO，排队中的写者会阻塞后到的读者，避免写者饥饿
//
// # 实现
//
// 设计决策: 基于 golang.org/x/sync/semaphore.Weighted 实现，总权重为 maxReaders：
//
//	读锁   Acquire(1)
//	写锁   Acquire(maxReaders)
//	降级   Release(maxReaders-1)，保留 1 个权重即为读锁
//
// 降级只归还权重而不归还全部许可，因此在转换过程中信号量始终被当前持有者占用，
// 等待中的写者需要全部权重，不可能在降级期间获得锁。
//
// # 注意事项
//
//   - 锁是非可重入的：同一 goroutine 在持有读锁时再次请求写锁会永久阻塞
//   - 读锁并发上限为 maxReaders（1<<30），超出后新的读者阻塞
//   - 守卫不是 goroutine 间共享的对象，同一守卫不应被并发 Release
package xrwlock
